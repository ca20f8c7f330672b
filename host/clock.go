package host

// Clock is game time in seconds, advanced once per tick.
type Clock struct {
	now float64
}

// Now implements unitscript.Clock.
func (c *Clock) Now() float64 { return c.now }

// Advance moves the clock forward by delta seconds.
func (c *Clock) Advance(delta float64) { c.now += delta }

// Set moves the clock to t.
func (c *Clock) Set(t float64) { c.now = t }
