package stripe

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/strataql/strata/internal/row"
)

// page is one compressed run of values for a single column.
type page struct {
	encoding Encoding
	rowCount uint32
	values   []row.Value // decoded values, populated after decode
}

// encodePage serializes values using the cheapest encoding the sampled
// distribution supports, then zstd-compresses the result.
//
//   - EncodingRLE when the average run length across a sample exceeds 4.
//   - EncodingDictionary when distinct values are under a quarter of the
//     sample, favoring repeated categorical data.
//   - EncodingPlain otherwise.
func encodePage(values []row.Value) ([]byte, error) {
	enc := chooseEncoding(values)
	var body bytes.Buffer
	switch enc {
	case EncodingRLE:
		encodeRLE(&body, values)
	case EncodingDictionary:
		encodeDictionary(&body, values)
	default:
		encodePlain(&body, values)
	}

	zw, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	compressed := zw.EncodeAll(body.Bytes(), nil)
	if err := zw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteByte(byte(enc))
	binary.Write(&out, binary.LittleEndian, uint32(len(values)))    //nolint:errcheck
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))     //nolint:errcheck
	binary.Write(&out, binary.LittleEndian, uint32(len(compressed))) //nolint:errcheck
	out.Write(compressed)
	return out.Bytes(), nil
}

func decodePage(data []byte) (page, int, error) {
	if len(data) < 1+4+4+4 {
		return page{}, 0, fmt.Errorf("stripe: truncated page header")
	}
	enc := Encoding(data[0])
	rowCount := binary.LittleEndian.Uint32(data[1:5])
	uncompressedLen := binary.LittleEndian.Uint32(data[5:9])
	compressedLen := binary.LittleEndian.Uint32(data[9:13])
	start := 13
	end := start + int(compressedLen)
	if end > len(data) {
		return page{}, 0, fmt.Errorf("stripe: truncated page body")
	}

	zr, err := zstd.NewReader(nil)
	if err != nil {
		return page{}, 0, err
	}
	defer zr.Close()
	body, err := zr.DecodeAll(data[start:end], make([]byte, 0, uncompressedLen))
	if err != nil {
		return page{}, 0, err
	}

	var values []row.Value
	switch enc {
	case EncodingRLE:
		values, err = decodeRLE(body, int(rowCount))
	case EncodingDictionary:
		values, err = decodeDictionary(body, int(rowCount))
	default:
		values, err = decodePlain(body, int(rowCount))
	}
	if err != nil {
		return page{}, 0, err
	}
	return page{encoding: enc, rowCount: rowCount, values: values}, end, nil
}

// chooseEncoding samples up to the first 256 values to pick an encoding
// without scanning the full page.
func chooseEncoding(values []row.Value) Encoding {
	if len(values) == 0 {
		return EncodingPlain
	}
	sample := values
	if len(sample) > 256 {
		sample = sample[:256]
	}
	distinct := map[string]struct{}{}
	runs := 1
	for i, v := range sample {
		distinct[string(row.Bytes(v))] = struct{}{}
		if i > 0 && !row.Equal(v, sample[i-1]) {
			runs++
		}
	}
	avgRun := float64(len(sample)) / float64(runs)
	if avgRun > 4 {
		return EncodingRLE
	}
	if float64(len(distinct))/float64(len(sample)) < 0.25 {
		return EncodingDictionary
	}
	return EncodingPlain
}

func encodePlain(buf *bytes.Buffer, values []row.Value) {
	for _, v := range values {
		writeTaggedValue(buf, v)
	}
}

func decodePlain(data []byte, n int) ([]row.Value, error) {
	r := bytes.NewReader(data)
	out := make([]row.Value, 0, n)
	for i := 0; i < n; i++ {
		v, err := readTaggedValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeRLE(buf *bytes.Buffer, values []row.Value) {
	i := 0
	for i < len(values) {
		j := i + 1
		for j < len(values) && row.Equal(values[j], values[i]) {
			j++
		}
		writeTaggedValue(buf, values[i])
		binary.Write(buf, binary.LittleEndian, uint32(j-i)) //nolint:errcheck
		i = j
	}
}

func decodeRLE(data []byte, n int) ([]row.Value, error) {
	r := bytes.NewReader(data)
	out := make([]row.Value, 0, n)
	for len(out) < n {
		v, err := readTaggedValue(r)
		if err != nil {
			return nil, err
		}
		var run uint32
		if err := binary.Read(r, binary.LittleEndian, &run); err != nil {
			return nil, err
		}
		for k := uint32(0); k < run; k++ {
			out = append(out, v)
		}
	}
	return out, nil
}

func encodeDictionary(buf *bytes.Buffer, values []row.Value) {
	dict := make([]row.Value, 0)
	index := make(map[string]uint32)
	codes := make([]uint32, len(values))
	for i, v := range values {
		key := string(row.Bytes(v))
		code, ok := index[key]
		if !ok {
			code = uint32(len(dict))
			index[key] = code
			dict = append(dict, v)
		}
		codes[i] = code
	}
	binary.Write(buf, binary.LittleEndian, uint32(len(dict))) //nolint:errcheck
	for _, v := range dict {
		writeTaggedValue(buf, v)
	}
	for _, c := range codes {
		binary.Write(buf, binary.LittleEndian, c) //nolint:errcheck
	}
}

func decodeDictionary(data []byte, n int) ([]row.Value, error) {
	r := bytes.NewReader(data)
	var dictLen uint32
	if err := binary.Read(r, binary.LittleEndian, &dictLen); err != nil {
		return nil, err
	}
	dict := make([]row.Value, dictLen)
	for i := range dict {
		v, err := readTaggedValue(r)
		if err != nil {
			return nil, err
		}
		dict[i] = v
	}
	out := make([]row.Value, 0, n)
	for i := 0; i < n; i++ {
		var code uint32
		if err := binary.Read(r, binary.LittleEndian, &code); err != nil {
			return nil, err
		}
		if int(code) >= len(dict) {
			return nil, fmt.Errorf("stripe: dictionary code %d out of range", code)
		}
		out = append(out, dict[code])
	}
	return out, nil
}
