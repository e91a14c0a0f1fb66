package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var csvHeader = []string{
	"id", "date", "prompt", "model", "style", "aspectRatio",
	"numImages", "imageUrls", "credits", "success", "error",
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode history export: %w", err)
	}
	return nil
}

// WriteCSV writes one row per record. Image URLs share a cell, space separated.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Date,
			r.Prompt,
			r.Model,
			r.Style,
			r.AspectRatio,
			strconv.Itoa(r.NumImages),
			strings.Join(r.ImageURLs, " "),
			strconv.Itoa(r.Credits),
			strconv.FormatBool(r.Success),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
