package config

// DefaultCaptureDir is where pcap files land when the config does not
// name a capture directory.
const DefaultCaptureDir = "/tmp"
