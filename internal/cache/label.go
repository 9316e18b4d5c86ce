package cache

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	sprig "github.com/Masterminds/sprig/v3"
)

const (
	// NeverSynced is the label for a payload without a fetch timestamp.
	NeverSynced = "Never synced"
	// DefaultLabelTemplate renders the time of day in the labeler's zone.
	DefaultLabelTemplate = `Last synced {{ dateInZone "3:04 PM" .At .Zone }}`
)

// Labeler renders the "last synced" line shown next to cached data. The
// template sees {At time.Time, Zone string} plus the sprig text functions
// without the environment and filesystem helpers.
type Labeler struct {
	tmpl *template.Template
	zone string
	loc  *time.Location
}

type labelData struct {
	At   time.Time
	Zone string
}

var defaultLabeler = mustLabeler(NewLabeler("", ""))

// NewLabeler compiles text (DefaultLabelTemplate when empty) for zone
// ("Local" when empty).
func NewLabeler(text, zone string) (*Labeler, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultLabelTemplate
	}
	if strings.TrimSpace(zone) == "" {
		zone = "Local"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("cache: label zone: %w", err)
	}

	funcs := sprig.TxtFuncMap()
	for _, name := range []string{"env", "expandenv", "readDir", "mustReadDir", "readFile", "mustReadFile", "glob"} {
		delete(funcs, name)
	}
	tmpl, err := template.New("last-synced").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("cache: parse label template: %w", err)
	}
	return &Labeler{tmpl: tmpl, zone: zone, loc: loc}, nil
}

// Label returns NeverSynced for a zero fetchedAt, otherwise the rendered
// template. A template that fails or renders nothing falls back to the
// kitchen-clock time.
func (l *Labeler) Label(fetchedAt int64) string {
	if fetchedAt <= 0 {
		return NeverSynced
	}
	if l == nil {
		l = defaultLabeler
	}
	at := time.UnixMilli(fetchedAt)
	var buf bytes.Buffer
	if err := l.tmpl.Execute(&buf, labelData{At: at, Zone: l.zone}); err == nil {
		if out := strings.TrimSpace(buf.String()); out != "" {
			return out
		}
	}
	return "Last synced " + at.In(l.loc).Format(time.Kitchen)
}

// LastSyncedLabel renders fetchedAt with the default template in local time.
func LastSyncedLabel(fetchedAt int64) string {
	return defaultLabeler.Label(fetchedAt)
}

func mustLabeler(l *Labeler, err error) *Labeler {
	if err != nil {
		panic(err)
	}
	return l
}
