package stages

// Page is one page of extracted text. Numbers are 1-indexed and
// cumulative across all source files of a book.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document is the extraction stage's artifact payload.
type Document struct {
	BookID    string `json:"book_id"`
	PageCount int    `json:"page_count"`
	Pages     []Page `json:"pages"`
}

// Boundary marks where a module starts. Strategies return boundaries
// in ascending page order.
type Boundary struct {
	Page  int    `json:"page"`
	Title string `json:"title,omitempty"`
}

// Module is one segment of a book, spanning an inclusive page range.
type Module struct {
	Index     int    `json:"index"`
	Title     string `json:"title,omitempty"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
}

// ModuleList is the segmentation stage's artifact payload.
type ModuleList struct {
	BookID  string   `json:"book_id"`
	Method  string   `json:"method"`
	Modules []Module `json:"modules"`
}

// Topic is one theme identified within a module.
type Topic struct {
	Name     string   `json:"name"`
	Summary  string   `json:"summary,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// ModuleTopics groups the topics found in one module.
type ModuleTopics struct {
	ModuleIndex int     `json:"module_index"`
	Topics      []Topic `json:"topics"`
}

// TopicReport is the topic analysis stage's artifact payload.
type TopicReport struct {
	BookID  string         `json:"book_id"`
	Modules []ModuleTopics `json:"modules"`
}

// VocabularyItem is one term worth teaching, with its definition.
type VocabularyItem struct {
	Term        string `json:"term"`
	Definition  string `json:"definition"`
	Example     string `json:"example,omitempty"`
	ModuleIndex int    `json:"module_index"`
}

// VocabularyList is the vocabulary stage's artifact payload.
type VocabularyList struct {
	BookID string           `json:"book_id"`
	Items  []VocabularyItem `json:"items"`
}

// AudioManifest is the audio generation stage's artifact payload,
// listing the audio files produced per module.
type AudioManifest struct {
	BookID string      `json:"book_id"`
	Files  []AudioFile `json:"files"`
}

// AudioFile describes one produced audio artifact.
type AudioFile struct {
	ModuleIndex int    `json:"module_index"`
	Name        string `json:"name"`
	Format      string `json:"format"`
	ItemCount   int    `json:"item_count"`
}
