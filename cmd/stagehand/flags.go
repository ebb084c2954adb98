package main

import "time"

// Flag structs decouple cobra from logic for testing.

type ServeFlags struct {
	ListenAddr string
	ConfigDir  string
	Debug      bool
	NoColor    bool
}

type ClientFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type StopFlags struct {
	ClientFlags
	Force bool
}

type LogsFlags struct {
	ClientFlags
	Tail  int
	Clear bool
}

type SettingsSetFlags struct {
	ClientFlags
	RuntimeMode   string
	RepoRoot      string
	RemoteAPIBase string
	AutoStart     string // tri-state: "", "true", "false"
	AutoRestart   string
	LivePort      int
	TTSServer     string
}
