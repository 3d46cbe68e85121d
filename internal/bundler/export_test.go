package bundler

// Exported test-only accessors for unexported functions and fields.

// ConfigForTest returns a copy of the processor configuration for assertions in tests.
func (processor *Processor) ConfigForTest() Options { return processor.config }

// ValidateConfigForTest exposes validateConfig.
func (processor *Processor) ValidateConfigForTest(roots []string) error {
	_, err := processor.validateConfig(roots)

	return err
}

// SetCodecForTest allows tests to inject a fake image codec.
func (processor *Processor) SetCodecForTest(imageCodec ImageCodec) {
	processor.codec = imageCodec
}

// SetPackerForTest allows tests to inject a fake PDF packer.
func (processor *Processor) SetPackerForTest(packer PDFPacker) {
	processor.packer = packer
}

// WriteFileAtomicForTest exposes writeFileAtomic.
func WriteFileAtomicForTest(path string, data []byte) error { return writeFileAtomic(path, data) }
