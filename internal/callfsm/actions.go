package callfsm

import "github.com/librescoot/librefsm"

// Actions defines the side effects the reconciler attaches to state
// entry and exit. They are the only place the call timer and ring
// indication start or stop.
type Actions interface {
	// State entry actions
	EnterIdle(c *librefsm.Context) error
	EnterIncoming(c *librefsm.Context) error
	EnterActive(c *librefsm.Context) error
	EnterOutgoing(c *librefsm.Context) error
	EnterHeld(c *librefsm.Context) error

	// State exit actions
	ExitIncoming(c *librefsm.Context) error
	ExitActive(c *librefsm.Context) error
	ExitHeld(c *librefsm.Context) error
}
