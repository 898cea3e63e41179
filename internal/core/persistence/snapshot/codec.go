package snapshot

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/autosave/internal/core/models"
)

// FormatVersion is written into every save header.
const FormatVersion = 1

var documentSeparator = []byte("\n---\n")

// Schema maps component kinds to stable names and decodes stored values.
// components.Registry implements it.
type Schema interface {
	Name(kind models.ComponentKind) (string, bool)
	Kind(name string) (models.ComponentKind, bool)
	Decode(kind models.ComponentKind, node *yaml.Node) (any, error)
}

// Header is the first YAML document of a save file.
type Header struct {
	Format     int       `yaml:"format"`
	Generation string    `yaml:"generation"`
	Sequence   uint64    `yaml:"sequence"`
	SavedAt    time.Time `yaml:"saved_at"`
	Entities   int       `yaml:"entities"`
	Checksum   string    `yaml:"checksum"`
}

// Document is a decoded save: its header and the population it holds.
type Document struct {
	Header     Header
	Population models.Population
}

type entityOut struct {
	ID         uint64         `yaml:"id"`
	Components map[string]any `yaml:"components"`
}

type entityIn struct {
	ID         uint64               `yaml:"id"`
	Components map[string]yaml.Node `yaml:"components"`
}

// Encode writes pop as a two-document YAML save: a header, then the entity
// list sorted by id. The header's Format, Entities and Checksum fields are
// filled in here; Checksum is the xxhash64 of the body document.
func Encode(header Header, pop models.Population, schema Schema) ([]byte, Header, error) {
	ids := slices.Sorted(maps.Keys(pop))
	records := make([]entityOut, 0, len(ids))
	for _, id := range ids {
		comps := make(map[string]any, len(pop[id]))
		for kind, v := range pop[id] {
			name, ok := schema.Name(kind)
			if !ok {
				return nil, header, fmt.Errorf("%w: kind %d on %s", ErrUnknownComponent, kind, id)
			}
			comps[name] = v
		}
		records = append(records, entityOut{ID: uint64(id), Components: comps})
	}

	body, err := yaml.Marshal(records)
	if err != nil {
		return nil, header, fmt.Errorf("encode entities: %w", err)
	}

	header.Format = FormatVersion
	header.Entities = len(records)
	header.Checksum = checksum(body)

	head, err := yaml.Marshal(header)
	if err != nil {
		return nil, header, fmt.Errorf("encode header: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(head) + len(documentSeparator) + len(body))
	buf.Write(bytes.TrimSuffix(head, []byte("\n")))
	buf.Write(documentSeparator)
	buf.Write(body)
	return buf.Bytes(), header, nil
}

// Decode parses and verifies a save produced by Encode.
func Decode(data []byte, schema Schema) (*Document, error) {
	head, body, found := bytes.Cut(data, documentSeparator)
	if !found {
		return nil, fmt.Errorf("%w: missing document separator", ErrMalformedSave)
	}

	var header Header
	if err := yaml.Unmarshal(head, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedSave, err)
	}
	if header.Format != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, header.Format)
	}
	if sum := checksum(body); sum != header.Checksum {
		return nil, fmt.Errorf("%w: header %s, body %s", ErrChecksumMismatch, header.Checksum, sum)
	}

	var records []entityIn
	if err := yaml.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: entities: %w", ErrMalformedSave, err)
	}
	if len(records) != header.Entities {
		return nil, fmt.Errorf("%w: header %d, body %d", ErrEntityCountMismatch, header.Entities, len(records))
	}

	pop := make(models.Population, len(records))
	for _, rec := range records {
		id := models.EntityID(rec.ID)
		if _, dup := pop[id]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrMalformedSave, id)
		}
		comps := make(models.Components, len(rec.Components))
		for name, node := range rec.Components {
			kind, ok := schema.Kind(name)
			if !ok {
				return nil, fmt.Errorf("%w: %q on %s", ErrUnknownComponent, name, id)
			}
			v, err := schema.Decode(kind, &node)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", id, err)
			}
			comps[kind] = v
		}
		pop[id] = comps
	}

	return &Document{Header: header, Population: pop}, nil
}

func checksum(body []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(body))
}
