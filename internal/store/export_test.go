package store

func init() {
	// Keep the password KDF cheap in tests.
	scryptParams = func() (int, int, int) { return 1 << 10, 8, 1 }
}
