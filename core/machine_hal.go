package core

// Machine is the abstract SoC control interface that core code uses.
// Platform-specific implementations handle the actual registers.
type Machine interface {
	// ServiceWatchdog restarts the hardware watchdog countdown. It must be
	// called at least once per watchdog period during long operations.
	ServiceWatchdog()

	// Reboot requests a software reset. On hardware it never returns.
	Reboot()

	// PowerDown asserts the watchdog output to cut power. On hardware it
	// never returns.
	PowerDown()
}

// nopMachine is used when no platform is configured.
type nopMachine struct{}

func (nopMachine) ServiceWatchdog() {}
func (nopMachine) Reboot()          {}
func (nopMachine) PowerDown()       {}
