package model

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// labelSet is the parsed metadata artifact.
type labelSet struct {
	labels    []string
	imageSize int // 0 when the artifact does not say
}

// teachableMetadata is the subset of a Teachable Machine metadata.json we use.
type teachableMetadata struct {
	Labels    []string `json:"labels"`
	Classes   []string `json:"classes"`
	ImageSize int      `json:"imageSize"`
}

// parseLabels decodes a metadata artifact; the format is chosen by file name.
func parseLabels(name string, data []byte) (labelSet, error) {
	var (
		set labelSet
		err error
	)
	if strings.EqualFold(path.Ext(name), ".json") {
		set, err = parseMetadataJSON(data)
	} else {
		set, err = parseLabelsText(data)
	}
	if err != nil {
		return labelSet{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(set.labels) == 0 {
		return labelSet{}, fmt.Errorf("parse %s: no labels", name)
	}
	return set, nil
}

func parseMetadataJSON(data []byte) (labelSet, error) {
	var meta teachableMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return labelSet{}, err
	}

	labels := meta.Labels
	if len(labels) == 0 {
		labels = meta.Classes
	}
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			return labelSet{}, fmt.Errorf("label %d is empty", i)
		}
	}
	return labelSet{labels: labels, imageSize: meta.ImageSize}, nil
}

// parseLabelsText reads one label per line. A leading class index
// ("0 Messy Desk") is stripped.
func parseLabelsText(data []byte) (labelSet, error) {
	var labels []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if idx, rest, ok := strings.Cut(line, " "); ok {
			if _, err := strconv.Atoi(idx); err == nil {
				line = strings.TrimSpace(rest)
			}
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return labelSet{}, err
	}
	return labelSet{labels: labels}, nil
}
