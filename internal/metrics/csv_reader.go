package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// ReadTimingsCSV reads a timings CSV written by Writer back into records.
func ReadTimingsCSV(path string) ([]PacketRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timings CSV: %w", err)
	}
	defer file.Close()

	return ParseTimingsCSV(file)
}

// ParseTimingsCSV parses timings rows from r.
func ParseTimingsCSV(r io.Reader) ([]PacketRecord, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[col] = i
	}
	for _, col := range CSVHeader {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("CSV missing required column: %s", col)
		}
	}

	var records []PacketRecord
	row := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("read CSV row %d: %w", row, err)
		}

		var rec PacketRecord
		if rec.Seq, err = strconv.Atoi(fields[colIndex["packet_num"]]); err != nil {
			return nil, fmt.Errorf("row %d: packet_num: %w", row, err)
		}
		if rec.Timestamp, err = time.ParseInLocation(TimestampLayout, fields[colIndex["timestamp"]], time.Local); err != nil {
			return nil, fmt.Errorf("row %d: timestamp: %w", row, err)
		}
		if rec.SendTimeNs, err = strconv.ParseInt(fields[colIndex["send_time_ns"]], 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: send_time_ns: %w", row, err)
		}
		if rec.ReceiveTimeNs, err = strconv.ParseInt(fields[colIndex["receive_time_ns"]], 10, 64); err != nil {
			return nil, fmt.Errorf("row %d: receive_time_ns: %w", row, err)
		}
		if rec.RTTUs, err = strconv.ParseFloat(fields[colIndex["rtt_us"]], 64); err != nil {
			return nil, fmt.Errorf("row %d: rtt_us: %w", row, err)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no data rows in CSV file")
	}
	return records, nil
}
