// Package desktop implements the SMCP Window Organizer (component C8):
// the pure function that takes a Computer's subscribed window resources
// and its recent tool-call history and produces the ordered, rendered
// desktop a get_desktop request returns.
//
// Grounded line-for-line on the "desktop" workflow rules: recent-server
// priority, per-server priority ordering, one-fullscreen-per-server, and
// a global size cap.
package desktop

import (
	"sort"
	"strings"
)

// Resource identifies one readable MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// TextContent is one chunk of a resource's read contents.
type TextContent struct {
	URI  string
	Text string
}

// ReadResult is the content returned by reading a Resource.
type ReadResult struct {
	Contents []TextContent
}

// WindowInput is one candidate window: the server it belongs to, its
// resource identity, and its currently-read contents.
type WindowInput struct {
	ServerName string
	Resource   Resource
	ReadResult ReadResult
}

// ToolCallRecord is one entry of a Computer's bounded tool-call history,
// used only for its Server field here.
type ToolCallRecord struct {
	Server string
}

type windowItem struct {
	resource      Resource
	readResult    ReadResult
	priority      int
	fullscreen    bool
	originalIndex int
}

// OrganizeDesktop renders windows into the desktop list a get_desktop
// request returns. size, if non-nil, caps the number of rendered entries
// (size<=0 returns an empty list); history orders servers most-recently-
// used first.
func OrganizeDesktop(windows []WindowInput, size *int, history []ToolCallRecord) []string {
	if size != nil && *size == 0 {
		return []string{}
	}

	grouped := map[string][]windowItem{}
	for idx, w := range windows {
		if len(w.ReadResult.Contents) == 0 {
			continue
		}
		uri, err := ParseWindowURI(w.Resource.URI)
		if err != nil {
			continue
		}
		grouped[w.ServerName] = append(grouped[w.ServerName], windowItem{
			resource:      w.Resource,
			readResult:    w.ReadResult,
			priority:      uri.Priority(),
			fullscreen:    uri.Fullscreen(),
			originalIndex: idx,
		})
	}

	var recentServers []string
	seen := map[string]bool{}
	for i := len(history) - 1; i >= 0; i-- {
		server := history[i].Server
		if _, ok := grouped[server]; ok && !seen[server] {
			seen[server] = true
			recentServers = append(recentServers, server)
		}
	}

	var remaining []string
	for server := range grouped {
		if !seen[server] {
			remaining = append(remaining, server)
		}
	}
	sort.Strings(remaining)

	serverOrder := append(recentServers, remaining...)

	for _, items := range grouped {
		sort.SliceStable(items, func(i, j int) bool { return items[i].priority > items[j].priority })
	}

	cap := len(windows) + 1
	if size != nil {
		cap = *size
	}

	result := make([]string, 0, len(windows))
	for _, server := range serverOrder {
		if len(result) >= cap {
			break
		}
		items := grouped[server]

		var firstFullscreen *windowItem
		for i := range items {
			if !items[i].fullscreen {
				continue
			}
			if firstFullscreen == nil || items[i].originalIndex < firstFullscreen.originalIndex {
				firstFullscreen = &items[i]
			}
		}
		if firstFullscreen != nil {
			result = append(result, renderDesktopItem(firstFullscreen.resource, firstFullscreen.readResult))
			continue
		}

		for _, item := range items {
			if len(result) >= cap {
				break
			}
			result = append(result, renderDesktopItem(item.resource, item.readResult))
		}
	}

	return result
}

func renderDesktopItem(resource Resource, readResult ReadResult) string {
	var parts []string
	for _, content := range readResult.Contents {
		if content.Text != "" {
			parts = append(parts, content.Text)
		}
	}
	body := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if body == "" {
		return resource.URI
	}
	return resource.URI + "\n\n" + body
}
