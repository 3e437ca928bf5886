package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fleet-ops-dashboard/internal/models"
)

// Parser handles parsing of recorded fleet snapshot files
type Parser struct {
	format string
}

// NewParser creates a new parser with the specified format
func NewParser(format string) *Parser {
	return &Parser{format: format}
}

// ParseFile parses one snapshot file
func (p *Parser) ParseFile(filename string) ([]models.VehicleRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads records in the parser's format
func (p *Parser) Parse(r io.Reader) ([]models.VehicleRecord, error) {
	switch strings.ToLower(p.format) {
	case "csv":
		return p.parseCSV(r)
	case "json":
		return p.parseJSON(r)
	case "jsonl", "ndjson":
		return p.parseJSONLines(r)
	case "log":
		return p.parseLog(r)
	default:
		return nil, fmt.Errorf("unsupported format: %s", p.format)
	}
}

// parseCSV parses CSV snapshots with a header row
func (p *Parser) parseCSV(r io.Reader) ([]models.VehicleRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable fields

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indices := make(map[string]int)
	for i, h := range header {
		indices[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var results []models.VehicleRecord
	lineNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, fmt.Errorf("error at line %d: %w", lineNum, err)
		}
		lineNum++

		data, err := p.rowToRecord(record, indices)
		if err != nil {
			log.Printf("⚠️  line %d: %v", lineNum, err)
			continue
		}
		results = append(results, data)
	}

	return results, nil
}

// rowToRecord converts a CSV row to a VehicleRecord
func (p *Parser) rowToRecord(row []string, indices map[string]int) (models.VehicleRecord, error) {
	var v models.VehicleRecord
	var err error

	getValue := func(key string) string {
		if idx, ok := indices[key]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	v.VehicleID = getValue("vehicle_id")
	if v.VehicleID == "" {
		return v, &models.MalformedRecordError{Reason: "missing vehicle_id"}
	}

	if ts := getValue("timestamp"); ts != "" {
		v.Timestamp, err = parseTimestamp(ts)
		if err != nil {
			return v, fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	v.Latitude = optionalFloat(getValue("latitude"))
	v.Longitude = optionalFloat(getValue("longitude"))
	v.SpeedKmph, _ = strconv.ParseFloat(getValue("speed_kmph"), 64)
	v.FuelConsumed, _ = strconv.ParseFloat(getValue("fuel_consumed_liters"), 64)
	v.CO2Kg, _ = strconv.ParseFloat(getValue("co2_kg"), 64)
	v.CO2SavedKg, _ = strconv.ParseFloat(getValue("co2_saved_kg"), 64)
	v.ETAHours, _ = strconv.ParseFloat(getValue("eta_hours"), 64)
	v.RouteID = getValue("route_id")
	v.Status = models.VehicleStatus(strings.ToUpper(getValue("status")))
	v.ETAStatus = models.ETAStatus(strings.ToUpper(getValue("eta_status")))
	v.CargoType = getValue("cargo_type")
	v.DeviationStatus = getValue("deviation_status")

	return v, nil
}

// parseJSON parses a JSON array as returned by the fleet API, falling back to
// newline-delimited JSON
func (p *Parser) parseJSON(r io.Reader) ([]models.VehicleRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var results []models.VehicleRecord
	if err := json.Unmarshal(data, &results); err == nil {
		return results, nil
	}

	return p.parseJSONLines(bytes.NewReader(data))
}

// parseJSONLines parses newline-delimited JSON
func (p *Parser) parseJSONLines(r io.Reader) ([]models.VehicleRecord, error) {
	var results []models.VehicleRecord
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "[" || line == "]" {
			continue
		}

		line = strings.TrimSuffix(line, ",")

		var v models.VehicleRecord
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			log.Printf("⚠️  line %d: %v", lineNum, err)
			continue
		}
		results = append(results, v)
	}

	return results, scanner.Err()
}

// parseLog parses the pipe format:
// timestamp|vehicle_id|lat,lon|speed|fuel|co2|route|status|eta_status|eta_hours
func (p *Parser) parseLog(r io.Reader) ([]models.VehicleRecord, error) {
	var results []models.VehicleRecord
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) < 9 {
			log.Printf("⚠️  line %d: insufficient fields", lineNum)
			continue
		}

		var v models.VehicleRecord
		var err error

		v.Timestamp, err = parseTimestamp(parts[0])
		if err != nil {
			log.Printf("⚠️  line %d: invalid timestamp", lineNum)
			continue
		}

		v.VehicleID = strings.TrimSpace(parts[1])

		coords := strings.Split(parts[2], ",")
		if len(coords) == 2 {
			v.Latitude = optionalFloat(coords[0])
			v.Longitude = optionalFloat(coords[1])
		}

		v.SpeedKmph, _ = strconv.ParseFloat(parts[3], 64)
		v.FuelConsumed, _ = strconv.ParseFloat(parts[4], 64)
		v.CO2Kg, _ = strconv.ParseFloat(parts[5], 64)
		v.RouteID = parts[6]
		v.Status = models.VehicleStatus(parts[7])
		v.ETAStatus = models.ETAStatus(parts[8])
		if len(parts) > 9 {
			v.ETAHours, _ = strconv.ParseFloat(parts[9], 64)
		}

		results = append(results, v)
	}

	return results, scanner.Err()
}

func optionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseTimestamp accepts epoch seconds or one of several layouts and returns epoch seconds
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.Unix(), nil
		}
	}

	return 0, fmt.Errorf("unable to parse timestamp: %s", s)
}
