package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Render produces the canonical YAML form of the deployment: fixed key order, sorted labels,
// two space indentation, and optional fields omitted when they hold their default value.
func Render(deployment *Deployment) ([]byte, error) {
	var buffer bytes.Buffer
	if err := Encode(&buffer, deployment); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func Encode(w io.Writer, deployment *Deployment) error {
	if deployment == nil {
		return fmt.Errorf("cannot render nil deployment")
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(deployment); err != nil {
		return fmt.Errorf("failed to encode deployment: %w", err)
	}
	return encoder.Close()
}

// RenderJSON produces the JSON form of the deployment, as accepted by the Kubernetes API.
func RenderJSON(deployment *Deployment) ([]byte, error) {
	data, err := json.MarshalIndent(deployment, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode deployment: %w", err)
	}
	return append(data, '\n'), nil
}

// IsCanonical reports whether document is byte for byte the rendering of its parsed form.
// The canonical rendering is returned alongside so that callers can show the difference.
func IsCanonical(document []byte) (bool, []byte, error) {
	deployment, err := Parse(document)
	if err != nil {
		return false, nil, err
	}

	canonical, err := Render(deployment)
	if err != nil {
		return false, nil, err
	}

	return bytes.Equal(document, canonical), canonical, nil
}
