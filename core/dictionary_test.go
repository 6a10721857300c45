package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"
)

type dictionaryJSON struct {
	Version      string                       `json:"version"`
	Config       map[string]string            `json:"config"`
	Commands     map[string]int               `json:"commands"`
	Responses    map[string]int               `json:"responses"`
	Enumerations map[string]map[string]uint32 `json:"enumerations"`
}

func TestDictionaryJSON(t *testing.T) {
	d := NewDictionary("test-1")
	d.AddConstant("CLOCK_FREQ", uint32(170_000_000))
	d.AddConstant("MCU", "stm32g431")
	d.AddConstant("DMA_CIRCULAR", true)
	d.AddEnumeration("dma_request", map[string]uint32{"TIM2_UP": 60})

	var got dictionaryJSON
	if err := json.Unmarshal(d.JSON(), &got); err != nil {
		t.Fatalf("invalid JSON %s: %v", d.JSON(), err)
	}
	if got.Version != "test-1" || got.Config["CLOCK_FREQ"] != "170000000" || got.Config["DMA_CIRCULAR"] != "1" {
		t.Errorf("dictionary = %+v", got)
	}
	if got.Commands["identify offset=%u count=%c"] != int(MsgIdentify) {
		t.Errorf("commands = %v", got.Commands)
	}
	if got.Commands["get_status"] != int(MsgGetStatus) {
		t.Errorf("commands = %v", got.Commands)
	}
	if got.Responses["identify_response offset=%u data=%*s"] != int(MsgIdentifyResponse) {
		t.Errorf("responses = %v", got.Responses)
	}
	if got.Enumerations["dma_request"]["TIM2_UP"] != 60 {
		t.Errorf("enumerations = %v", got.Enumerations)
	}
	if len(got.Commands)+len(got.Responses) != len(Messages) {
		t.Errorf("%d commands + %d responses for %d messages", len(got.Commands), len(got.Responses), len(Messages))
	}
}

func TestDictionaryChunks(t *testing.T) {
	d := NewDictionary("test-1")
	d.AddConstant("NOTE", `say "hi"`)
	if d.Size() != 0 || d.Chunk(0, IdentifyChunk) != nil {
		t.Fatal("chunk served before Build")
	}
	if err := d.Build(); err != nil {
		t.Fatal(err)
	}

	var stream []byte
	for off := uint32(0); ; {
		c := d.Chunk(off, IdentifyChunk)
		if len(c) == 0 {
			break
		}
		if len(c) > IdentifyChunk {
			t.Fatalf("chunk of %d bytes", len(c))
		}
		stream = append(stream, c...)
		off += uint32(len(c))
	}
	if len(stream) != d.Size() {
		t.Fatalf("reassembled %d of %d bytes", len(stream), d.Size())
	}
	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatal(err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, d.JSON()) {
		t.Errorf("inflated dictionary differs from JSON()")
	}
	var got dictionaryJSON
	if err := json.Unmarshal(raw, &got); err != nil || got.Config["NOTE"] != `say "hi"` {
		t.Errorf("quoted constant = %q, err %v", got.Config["NOTE"], err)
	}
}
