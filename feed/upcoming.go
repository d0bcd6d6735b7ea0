package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/cyp0633/libschedule/schedule"
)

const atomNamespace = "http://www.w3.org/2005/Atom"

// Item is one upcoming occurrence.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Updated     time.Time `json:"updated"`
	Link        string    `json:"link"`
	Cancelled   bool      `json:"cancelled,omitempty"`
}

// Content is the item body: title and description on separate lines.
func (i Item) Content() string {
	return fmt.Sprintf("%s \n %s", i.Title, i.Description)
}

// Upcoming is the feed of the next occurrences of one calendar.
type Upcoming struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	Updated time.Time `json:"updated"`
	Items   []Item    `json:"items"`
}

// UpcomingFeed builds the feed for cal from occurrences already cut to the
// feed length. baseURL prefixes every link and may be empty.
func UpcomingFeed(cal *schedule.Calendar, occs []*schedule.Occurrence, baseURL string, now time.Time) *Upcoming {
	base := strings.TrimRight(baseURL, "/")
	feed := &Upcoming{
		ID:      "upcoming:" + cal.Slug,
		Title:   "Upcoming Events for " + cal.Name,
		Link:    base + "/calendars/" + cal.Slug,
		Updated: now,
		Items:   make([]Item, 0, len(occs)),
	}

	for _, occ := range occs {
		item := Item{
			ID:          occurrenceID(occ),
			Title:       occ.Title,
			Description: occ.Description,
			Start:       occ.Start,
			End:         occ.End,
			Link:        fmt.Sprintf("%s/events/%s/occurrences/%s", base, occ.EventID, occ.OriginalStart.UTC().Format(time.RFC3339)),
			Cancelled:   occ.Cancelled,
		}
		if ev, ok := occ.Event.(*schedule.Event); ok {
			item.Author = ev.Creator
			item.Updated = ev.CreatedOn
		}
		feed.Items = append(feed.Items, item)
	}
	return feed
}

// occurrenceID is the stored ID of a persisted occurrence and a stable
// event/original-start pair for a generated one.
func occurrenceID(occ *schedule.Occurrence) string {
	if occ.ID != "" {
		return occ.ID
	}
	return occ.EventID + "@" + occ.OriginalStart.UTC().Format(time.RFC3339)
}

// Atom renders the feed as an Atom document.
func (u *Upcoming) Atom() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	root := doc.CreateElement("feed")
	root.CreateAttr("xmlns", atomNamespace)
	root.CreateElement("id").SetText(u.ID)
	root.CreateElement("title").SetText(u.Title)
	root.CreateElement("link").CreateAttr("href", u.Link)
	root.CreateElement("updated").SetText(u.Updated.UTC().Format(time.RFC3339))

	for _, item := range u.Items {
		entry := root.CreateElement("entry")
		entry.CreateElement("id").SetText(item.ID)
		entry.CreateElement("title").SetText(item.Title)
		entry.CreateElement("link").CreateAttr("href", item.Link)
		entry.CreateElement("author").CreateElement("name").SetText(item.Author)
		if !item.Updated.IsZero() {
			entry.CreateElement("updated").SetText(item.Updated.UTC().Format(time.RFC3339))
		}
		content := entry.CreateElement("content")
		content.CreateAttr("type", "text")
		content.SetText(item.Content())
	}
	return doc
}
