package core

import (
	"sort"

	"wavedma/tinycompress"
)

// FirmwareVersion is reported in the dictionary.
const FirmwareVersion = "wavedma-0.3"

// IdentifyChunk is the largest piece of the dictionary one
// identify_response carries.
const IdentifyChunk = 40

// Dictionary describes a running board to the host: the firmware version,
// board constants, the message table and enumerations. The host fetches
// it with identify, compressed, in chunks.
type Dictionary struct {
	version      string
	constants    map[string]string
	enumerations map[string]map[string]uint32
	cached       []byte
}

func NewDictionary(version string) *Dictionary {
	return &Dictionary{
		version:      version,
		constants:    make(map[string]string),
		enumerations: make(map[string]map[string]uint32),
	}
}

// AddConstant records a board constant. Adding after Build discards the
// cached form.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.constants[name] = valueToString(value)
	d.cached = nil
}

// AddEnumeration records named values, e.g. DMAMUX request lines.
func (d *Dictionary) AddEnumeration(name string, values map[string]uint32) {
	m := make(map[string]uint32, len(values))
	for k, v := range values {
		m[k] = v
	}
	d.enumerations[name] = m
	d.cached = nil
}

// Build compresses the dictionary and keeps the result for Chunk.
func (d *Dictionary) Build() error {
	data, err := tinycompress.Compress(d.JSON())
	if err != nil {
		return err
	}
	d.cached = data
	return nil
}

// Size is the length of the compressed dictionary, 0 before Build.
func (d *Dictionary) Size() int { return len(d.cached) }

// Chunk returns up to count bytes of the compressed dictionary from
// offset. An empty chunk marks the end.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	if offset >= uint32(len(d.cached)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(d.cached)) {
		end = uint32(len(d.cached))
	}
	return d.cached[offset:end]
}

// JSON renders the dictionary. Keys are sorted so the output is stable.
func (d *Dictionary) JSON() []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendQuoted(out, d.version)

	out = append(out, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, d.constants[name])
	}

	commands := make(map[string]uint32)
	responses := make(map[string]uint32)
	for _, m := range Messages {
		key := m.Name
		if m.Format != "" {
			key += " " + m.Format
		}
		if m.Response {
			responses[key] = uint32(m.ID)
		} else {
			commands[key] = uint32(m.ID)
		}
	}
	out = append(out, `},"commands":`...)
	out = appendNumbers(out, commands)
	out = append(out, `,"responses":`...)
	out = appendNumbers(out, responses)

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendQuoted(out, name)
			out = append(out, ':')
			out = appendNumbers(out, d.enumerations[name])
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

func appendNumbers(out []byte, m map[string]uint32) []byte {
	out = append(out, '{')
	for i, k := range sortedKeys(m) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, k)
		out = append(out, ':')
		out = append(out, utoa(m[k])...)
	}
	return append(out, '}')
}

func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return append(out, '"')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valueToString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case uint32:
		return utoa(x)
	case uint16:
		return utoa(uint32(x))
	case uint8:
		return utoa(uint32(x))
	case int:
		return itoa(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	}
	return "?"
}
