package domain

// BookMetadata describes the source document, extracted from EPUB/PDF at
// submission time or provided by the caller. Serialized as JSON at the
// store boundary.
type BookMetadata struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	Publisher       string `json:"publisher,omitempty"`
	Language        string `json:"language,omitempty"`
	ISBN            string `json:"isbn,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
	Description     string `json:"description,omitempty"`
}

// DisplayName formats a human-readable name for the book.
func (m *BookMetadata) DisplayName() string {
	switch {
	case m == nil:
		return "Unknown Book"
	case m.Title != "" && m.Author != "":
		return m.Title + " by " + m.Author
	case m.Title != "":
		return m.Title
	default:
		return "Unknown Book"
	}
}
