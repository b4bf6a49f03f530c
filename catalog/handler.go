package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aoitools/s2prep/catalog/entities"
	"github.com/aoitools/s2prep/service/log"
	"github.com/gorilla/mux"
)

const areaJSONField = "area"

func (c *Catalog) AddHandler(r *mux.Router) {
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("GET")
	r.HandleFunc("/catalog/scenes", c.ScenesHandler).Methods("POST")
	r.HandleFunc("/catalog/aoi", c.PostAOIHandler).Methods("POST")
}

func readField(req *http.Request, field string) ([]byte, error) {
	if req.FormValue(field) != "" {
		return []byte(req.FormValue(field)), nil
	}
	file, _, err := req.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	io.Copy(&buf, file)
	return buf.Bytes(), nil
}

func (c *Catalog) loadArea(req *http.Request) (entities.AreaOfInterest, error) {
	area := entities.AreaOfInterest{}
	areaJSON, err := readField(req, areaJSONField)
	if err != nil {
		return area, err
	}
	if len(areaJSON) == 0 {
		return area, fmt.Errorf("loadArea: missing required field: '%s' (application/json)", areaJSONField)
	}
	if err := json.Unmarshal(areaJSON, &area); err != nil {
		return area, fmt.Errorf("loadArea: %w\nJSON:\n%s", err, areaJSON)
	}
	return area, nil
}

// ScenesHandler lists the scenes covering an AOI during an interval of time and returns a json
func (c *Catalog) ScenesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	area, err := c.loadArea(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	scenes, err := c.DoScenesInventory(ctx, area)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.ScenesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}

	if err := json.NewEncoder(w).Encode(scenes); err != nil {
		log.Logger(ctx).Sugar().Warnf("catalog.ScenesHandler.%v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
	}
}

// PostAOIHandler checks that an area of interest is searchable
func (c *Catalog) PostAOIHandler(w http.ResponseWriter, req *http.Request) {
	area, err := c.loadArea(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	if err := c.ValidateArea(&area); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}

	w.WriteHeader(200)
	fmt.Fprintf(w, "AOI %s is valid\n", area.AOIID)
}
