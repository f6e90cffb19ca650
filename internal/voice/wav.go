package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/discord-voice-assistant/internal/assistant"
)

var errNotWAV = errors.New("voice: not a PCM16 WAV")

// buildWAV wraps little-endian PCM16 samples in a RIFF/WAVE header.
func buildWAV(pcm []int16, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	dataLen := uint32(len(pcm) * 2)
	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataLen)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bitsPerSample/8))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataLen)
	_ = binary.Write(buf, binary.LittleEndian, pcm)
	return buf.Bytes()
}

// parseWAV reads a PCM16 WAV. Chunks other than fmt and data are skipped.
func parseWAV(b []byte) (assistant.Asset, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return assistant.Asset{}, errNotWAV
	}
	var (
		asset   assistant.Asset
		haveFmt bool
	)
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(b) {
			// streaming servers often leave the data size unset
			end = len(b)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return assistant.Asset{}, fmt.Errorf("%w: short fmt chunk", errNotWAV)
			}
			format := binary.LittleEndian.Uint16(b[body:])
			bits := binary.LittleEndian.Uint16(b[body+14:])
			if format != 1 || bits != 16 {
				return assistant.Asset{}, fmt.Errorf("%w: format %d, %d bits", errNotWAV, format, bits)
			}
			asset.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			asset.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return assistant.Asset{}, fmt.Errorf("%w: data before fmt", errNotWAV)
			}
			data := b[body:end]
			asset.PCM = make([]int16, len(data)/2)
			for i := range asset.PCM {
				asset.PCM[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
			}
			return asset, nil
		}
		off = end + size%2
	}
	return assistant.Asset{}, fmt.Errorf("%w: no data chunk", errNotWAV)
}
