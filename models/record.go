package models

// Record is the validated structured output for one target: schema-defined
// field names mapped to typed values (string, float64, bool, nil, or
// []string). A Record is only ever built from a response that parsed as a
// JSON object and passed schema normalization.
type Record map[string]any
