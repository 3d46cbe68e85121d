package codec

// IsAVIFForTest exposes isAVIF for tests in the external package.
func IsAVIFForTest(data []byte) bool { return isAVIF(data) }
