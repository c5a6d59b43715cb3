package tooladapter

import "sync"

var (
	filesMu sync.Mutex
	files   = map[string]string{}
)

// ReadFile returns the stored content for params.path, or an empty
// string if nothing has been written there yet.
func ReadFile(params map[string]interface{}) (map[string]interface{}, error) {
	if err := requireFields(params, "path"); err != nil {
		return nil, err
	}
	path, _ := params["path"].(string)

	filesMu.Lock()
	content := files[path]
	filesMu.Unlock()

	return map[string]interface{}{"path": path, "content": content}, nil
}

// WriteFile stores params.content under params.path.
func WriteFile(params map[string]interface{}) (map[string]interface{}, error) {
	if err := requireFields(params, "path", "content"); err != nil {
		return nil, err
	}
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)

	filesMu.Lock()
	files[path] = content
	filesMu.Unlock()

	return map[string]interface{}{"path": path, "status": "written"}, nil
}
