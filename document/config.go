package document

// Config carries the constants design note §9 lifts out of code: the
// reserved widths for the two signature placeholders, a scratch
// directory, and the producer string stamped into /Info. Signing runs in
// memory, so nothing in this package reads TempDir. The source of
// randomness for widget names is SignRequest.WidgetRandomSource, not a
// Config field. DefaultConfig returns the values this module used to
// hard-code.
type Config struct {
	SignatureHexCapacity int
	ByteRangeCapacity    int
	TempDir              string
	Producer             string
}

// Default constants: SIG_HEX_CAP reserves 5871 bytes (11742 hex chars)
// for the detached signature, enough for an RSA-4096 signature plus a
// timestamp token and modest revocation data; BR_CAP reserves 68 bytes
// for the /ByteRange array value "[a b c d]" with room for filesizes up
// to 10 digits each.
func DefaultConfig() Config {
	return Config{
		SignatureHexCapacity: 11742,
		ByteRangeCapacity:    68,
		TempDir:              "",
		Producer:             "Modificado con SAPP",
	}
}
