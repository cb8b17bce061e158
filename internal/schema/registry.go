package schema

import "fmt"

// Category groups topics that compete for a shared attention budget.
type Category struct {
	ID   CategoryID
	Name string
}

// Topic describes a tradable asset at seed time. Mutable trading state
// lives in the market package; the registry entry never changes.
type Topic struct {
	ID           TopicID
	CategoryID   CategoryID
	Ticker       string
	Name         string
	TotalShares  int64
	InitialPrice float64
}

// Registry stores category and topic mappings in a compact form.
type Registry struct {
	categories     []Category
	topics         []Topic
	categoryByName map[string]CategoryID
	topicByTicker  map[string]TopicID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		categoryByName: make(map[string]CategoryID),
		topicByTicker:  make(map[string]TopicID),
	}
}

// AddCategory registers a new category and returns its ID.
func (r *Registry) AddCategory(name string) (CategoryID, error) {
	if name == "" {
		return 0, fmt.Errorf("category name is empty")
	}
	if id, ok := r.categoryByName[name]; ok {
		return id, fmt.Errorf("category already exists: %s", name)
	}
	id := CategoryID(len(r.categories) + 1)
	r.categories = append(r.categories, Category{ID: id, Name: name})
	r.categoryByName[name] = id
	return id, nil
}

// AddTopic registers a new topic and returns its ID.
func (r *Registry) AddTopic(ticker, name string, categoryID CategoryID, totalShares int64, initialPrice float64) (TopicID, error) {
	if ticker == "" {
		return 0, fmt.Errorf("topic ticker is empty")
	}
	if _, ok := r.Category(categoryID); !ok {
		return 0, fmt.Errorf("category id not found: %d", categoryID)
	}
	if totalShares <= 0 {
		return 0, fmt.Errorf("total shares must be > 0 for %s", ticker)
	}
	if initialPrice <= 0 {
		return 0, fmt.Errorf("initial price must be > 0 for %s", ticker)
	}
	if id, ok := r.topicByTicker[ticker]; ok {
		return id, fmt.Errorf("topic already exists: %s", ticker)
	}
	id := TopicID(len(r.topics) + 1)
	r.topics = append(r.topics, Topic{
		ID:           id,
		CategoryID:   categoryID,
		Ticker:       ticker,
		Name:         name,
		TotalShares:  totalShares,
		InitialPrice: initialPrice,
	})
	r.topicByTicker[ticker] = id
	return id, nil
}

// Category returns the category by ID.
func (r *Registry) Category(id CategoryID) (Category, bool) {
	if id == 0 || int(id) > len(r.categories) {
		return Category{}, false
	}
	return r.categories[id-1], true
}

// Topic returns the topic by ID.
func (r *Registry) Topic(id TopicID) (Topic, bool) {
	if id == 0 || int(id) > len(r.topics) {
		return Topic{}, false
	}
	return r.topics[id-1], true
}

// TopicCount returns the number of topics in the registry.
func (r *Registry) TopicCount() int {
	return len(r.topics)
}

// TopicAt returns the topic by zero-based index.
func (r *Registry) TopicAt(index int) (Topic, bool) {
	if index < 0 || index >= len(r.topics) {
		return Topic{}, false
	}
	return r.topics[index], true
}

// CategoryIDByName returns the category ID for a name.
func (r *Registry) CategoryIDByName(name string) (CategoryID, bool) {
	id, ok := r.categoryByName[name]
	return id, ok
}

// TopicIDByTicker returns the topic ID for a ticker.
func (r *Registry) TopicIDByTicker(ticker string) (TopicID, bool) {
	id, ok := r.topicByTicker[ticker]
	return id, ok
}

// TopicsInCategory returns the topic IDs belonging to a category, in
// registration order.
func (r *Registry) TopicsInCategory(id CategoryID) []TopicID {
	var out []TopicID
	for _, t := range r.topics {
		if t.CategoryID == id {
			out = append(out, t.ID)
		}
	}
	return out
}
