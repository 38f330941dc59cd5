// Script to compare CMR granule counts against the OB.DAAC file-search
// API for one sensor and month. The two catalogs lag each other after
// reprocessing campaigns; this shows by how much.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	cmrBaseURL       = "https://cmr.earthdata.nasa.gov/search/granules.umm_json"
	oceanDataBaseURL = "https://oceandata.sci.gsfc.nasa.gov/api/file_search"
)

func main() {
	shortName := "MODISA_L2_OC"
	sensor := "aqua"
	if len(os.Args) > 2 {
		shortName = os.Args[1]
		sensor = os.Args[2]
	}

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, -1, 0)

	fmt.Println("=== Catalog Comparison: CMR vs OB.DAAC file search ===")
	fmt.Printf("Collection: %s, sensor: %s\n", shortName, sensor)
	fmt.Printf("Date range: %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))

	cmrCount, err := countCMR(shortName, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CMR query failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("CMR hits:          %d\n", cmrCount)

	fileCount, err := countFileSearch(sensor, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "file search failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("file_search files: %d\n", fileCount)

	diff := cmrCount - fileCount
	if diff < 0 {
		diff = -diff
	}
	fmt.Printf("\ndifference: %d\n", diff)
}

func countCMR(shortName string, start, end time.Time) (int, error) {
	params := url.Values{}
	params.Set("short_name", shortName)
	params.Set("provider", "OB_DAAC")
	params.Set("temporal", fmt.Sprintf("%s,%s",
		start.Format("2006-01-02T15:04:05Z"), end.Format("2006-01-02T15:04:05Z")))
	params.Set("page_size", "1")

	resp, err := http.Get(cmrBaseURL + "?" + params.Encode())
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		Hits int `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.Hits, nil
}

func countFileSearch(sensor string, start, end time.Time) (int, error) {
	if sensor == "snpp" {
		sensor = "viirs"
	}

	form := url.Values{}
	form.Set("sensor", sensor)
	form.Set("dtype", "L2")
	form.Set("sdate", start.Format("2006-01-02"))
	form.Set("edate", end.Format("2006-01-02"))
	form.Set("addurl", "0")
	form.Set("results_as_file", "1")
	form.Set("cksum", "1")
	form.Set("format", "json")

	resp, err := http.Post(oceanDataBaseURL, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var files map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return 0, err
	}
	return len(files), nil
}
