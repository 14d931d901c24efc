package lending

// SearchFieldString is a type alias for the single book attribute a catalog
// search matches against.
type SearchFieldString = string

const (
	SearchByTitle    SearchFieldString = "title"
	SearchByAuthor   SearchFieldString = "author"
	SearchByCategory SearchFieldString = "category"
	SearchByISBN     SearchFieldString = "isbn"
)

// NormalizeSearchField maps an unknown or empty field selector to the
// default (title). Search matches exactly one field per call - there is no
// cross-field relevance ranking.
func NormalizeSearchField(field SearchFieldString) SearchFieldString {
	switch field {
	case SearchByAuthor, SearchByCategory, SearchByISBN:
		return field
	default:
		return SearchByTitle
	}
}
