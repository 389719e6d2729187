package clinicauth

// EncryptField envelope-encrypts value under the primary key. Empty values
// and engines without a key ring pass value through unchanged.
func (e *Engine) EncryptField(value string) (string, error) {
	if e.fields == nil || value == "" {
		return value, nil
	}
	return e.fields.Encrypt(value)
}

// EncryptFieldPtr is EncryptField for nullable columns; nil stays nil.
func (e *Engine) EncryptFieldPtr(value *string) (*string, error) {
	if e.fields == nil || value == nil {
		return value, nil
	}
	return e.fields.EncryptPtr(value)
}

// DecryptField returns the plaintext of an envelope value. Unmarked values
// are returned unchanged, as are values no configured key can open; the
// latter is logged.
func (e *Engine) DecryptField(value string) string {
	if e.fields == nil {
		return value
	}
	plain, ok := e.fields.DecryptChecked(value)
	if !ok {
		e.metricInc(MetricDecryptFallback)
		e.warn("field decryption failed; returning stored value")
	}
	return plain
}

// DecryptFieldPtr is DecryptField for nullable columns.
func (e *Engine) DecryptFieldPtr(value *string) *string {
	if value == nil {
		return nil
	}
	out := e.DecryptField(*value)
	return &out
}
