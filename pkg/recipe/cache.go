package recipe

import (
	"encoding/gob"
	"os"
	"reflect"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
}

// WriteCache stores the parsed recipe together with the option values it was
// configured with.
func WriteCache(file string, options map[string]string, rcp *Recipe) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(options)
	if err != nil {
		return err
	}

	err = encoder.Encode(rcp.Package)
	if err != nil {
		return err
	}

	return encoder.Encode(rcp.Tasks)
}

// ReadCache loads a recipe cache written by WriteCache. The cache is only
// valid for the option values it returns; callers have to reparse when their
// options differ.
func ReadCache(file string) (map[string]string, *Recipe, error) {
	handle, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var options map[string]string
	err = decoder.Decode(&options)
	if err != nil {
		return nil, nil, err
	}

	var pkg Package
	err = decoder.Decode(&pkg)
	if err != nil {
		return options, nil, err
	}

	var tasks TaskList
	err = decoder.Decode(&tasks)
	if err != nil {
		return options, nil, err
	}

	return options, &Recipe{Package: &pkg, Tasks: tasks}, nil
}

// CacheValid reports whether the cached option values match the requested
// ones.
func CacheValid(cached, requested map[string]string) bool {
	if len(requested) == 0 {
		return len(cached) == 0
	}

	return reflect.DeepEqual(cached, requested)
}
