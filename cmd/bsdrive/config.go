package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// storeConfig reads a JSON store config such as
//
//	{"type": "sqlite3", "conn": "/var/lib/bsdrive/blobs.db"}
func storeConfig(filename string) (map[string]interface{}, error) {
	var conf map[string]interface{}
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	err = dec.Decode(&conf)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}

	if _, ok := conf["type"].(string); !ok {
		return nil, fmt.Errorf("config file %s missing `type` parameter", filename)
	}
	return conf, nil
}
