package main

import "github.com/oshokin/satellite-timers/cmd/timer-hub/cmd"

func main() {
	cmd.Execute()
}
