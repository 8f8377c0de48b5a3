package wiring

// HoldRunLock takes the run lock the way an in-flight batch does.
func HoldRunLock(c *Container) (release func()) {
	c.runMu.Lock()
	return c.runMu.Unlock
}
