// Package record normalizes parsed inference output against per-kind
// schemas. The source of truth is inherently unstructured model text, so
// schema mismatches are lossy, never fatal.
package record

// FieldType is the declared type of a schema field.
type FieldType string

const (
	String     FieldType = "string"
	Number     FieldType = "number"
	Bool       FieldType = "bool"
	StringList FieldType = "string_list"
)

// Field is one declared schema field.
type Field struct {
	Name string
	Type FieldType
}

// Schema declares the fields of a record kind, in presentation order
// (the tabular export emits columns in this order).
type Schema struct {
	Kind   string
	Fields []Field
}

// builtinSchemas mirror the built-in prompt templates.
var builtinSchemas = []Schema{
	{
		Kind: "product",
		Fields: []Field{
			{Name: "product_name", Type: String},
			{Name: "price", Type: String},
			{Name: "rating", Type: Number},
			{Name: "num_reviews", Type: Number},
			{Name: "description", Type: String},
			{Name: "key_features", Type: StringList},
			{Name: "availability", Type: String},
			{Name: "seller", Type: String},
		},
	},
	{
		Kind: "article",
		Fields: []Field{
			{Name: "title", Type: String},
			{Name: "author", Type: String},
			{Name: "date_published", Type: String},
			{Name: "summary", Type: String},
			{Name: "main_topics", Type: StringList},
			{Name: "source", Type: String},
		},
	},
	{
		Kind: "real_estate",
		Fields: []Field{
			{Name: "address", Type: String},
			{Name: "price", Type: String},
			{Name: "bedrooms", Type: Number},
			{Name: "bathrooms", Type: Number},
			{Name: "area_sqft", Type: Number},
			{Name: "property_type", Type: String},
			{Name: "features", Type: StringList},
			{Name: "agent", Type: String},
		},
	},
}
