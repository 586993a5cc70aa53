package repository

// Option applies a configuration option to the MemoryBackend.
type Option func(*MemoryBackend)

// WithoutTemplate removes the schema template of table, so ensuring any of its
// partitions fails with ErrTemplateMissing.
func WithoutTemplate(table Table) Option {
	return func(b *MemoryBackend) {
		delete(b.templates, table)
	}
}
