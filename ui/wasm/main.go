//go:build js && wasm

// Command wasm exposes the telemetry frame codec to a browser page that
// talks to a board over Web Serial.
package main

import (
	"encoding/hex"
	"encoding/json"
	"syscall/js"

	"wavedma/core"
	"wavedma/host/decode"
	"wavedma/protocol"
)

func main() {
	js.Global().Set("wavedmaWasm", js.ValueOf(map[string]interface{}{
		"encodeCommand": js.FuncOf(encodeCommandWrapper),
		"decodeFrames":  js.FuncOf(decodeFramesWrapper),
		"crc16":         js.FuncOf(crc16Wrapper),
		"version":       core.FirmwareVersion,
	}))

	select {}
}

// encodeCommandWrapper builds a command frame.
// Args: name (string), seq (number), args... (numbers)
// Returns: {frame: hex string, error: string}
func encodeCommandWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return result("", "missing name or sequence argument")
	}
	values := make([]uint32, 0, len(args)-2)
	for _, a := range args[2:] {
		values = append(values, uint32(a.Int()))
	}
	frame, err := decode.Command(args[0].String(), uint8(args[1].Int()), values...)
	if err != nil {
		return result("", err.Error())
	}
	return result(hex.EncodeToString(frame), "")
}

// decodeFramesWrapper decodes received bytes.
// Args: hexString (string)
// Returns: {frames: JSON string, dropped: number, error: string}
func decodeFramesWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return result("", "missing hex string argument")
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return result("", "invalid hex string: "+err.Error())
	}
	frames, dropped := decode.Stream(data)
	out, err := json.Marshal(frames)
	if err != nil {
		return result("", err.Error())
	}
	return js.ValueOf(map[string]interface{}{
		"frames":  string(out),
		"dropped": int(dropped),
		"error":   "",
	})
}

// crc16Wrapper returns the frame CRC of a hex string, 0 on bad input.
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

func result(frame, errMsg string) js.Value {
	return js.ValueOf(map[string]interface{}{
		"frame": frame,
		"error": errMsg,
	})
}
