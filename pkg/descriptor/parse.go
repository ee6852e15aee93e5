package descriptor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
	kyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/utils/ptr"
)

// Parse decodes a single YAML document into a Deployment and checks every invariant of the result.
// On failure the returned error is an ErrorList holding every problem found, not only the first.
// Input holding more than one document is rejected; use ParseAll for streams.
func Parse(document []byte) (*Deployment, error) {
	stream := yaml.NewDecoder(bytes.NewReader(document))

	var root yaml.Node
	if err := stream.Decode(&root); err != nil && !errors.Is(err, io.EOF) {
		return nil, ErrorList{schemaError(nil, nil, "malformed document: %v", err)}
	}
	if len(root.Content) == 0 {
		return nil, ErrorList{schemaError(nil, nil, "empty document")}
	}

	for {
		var extra yaml.Node
		err := stream.Decode(&extra)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ErrorList{schemaError(nil, nil, "malformed document: %v", err)}
		}
		if !isEmptyDocument(&extra) {
			return nil, ErrorList{{
				Type:   ErrorTypeSchema,
				Detail: "expected a single document but found another",
				Line:   extra.Line,
			}}
		}
	}

	dec := decoder{lines: make(map[string]int)}
	deployment := dec.deployment(root.Content[0])

	errs := dec.errs
	for _, err := range Validate(deployment) {
		if err.shadowedBy(dec.errs) {
			continue
		}
		err.Line = dec.line(err.Field)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		errs.Sort()
		return nil, errs
	}

	return deployment, nil
}

// Result is the outcome of parsing one document of a stream. Line is the line of the stream the
// document starts on.
type Result struct {
	Index      int
	Line       int
	Deployment *Deployment
	Errors     ErrorList
}

// ParseAll splits a multi-document YAML stream and parses every non-empty document.
// Error lines are lines of the stream, not of the document they were found in.
// The returned error is only set when the stream itself cannot be read.
func ParseAll(r io.Reader) ([]Result, error) {
	stream, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	reader := kyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(stream)))

	starts := documentStarts(stream)

	var results []Result
	for index, read := 0, 0; ; read++ {
		document, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return results, fmt.Errorf("failed to read document %d: %w", index, err)
		}

		if len(bytes.TrimSpace(stripComments(document))) == 0 {
			continue
		}

		var lines int
		if read < len(starts) {
			lines = starts[read]
		}

		result := Result{Index: index, Line: lines + 1}
		result.Deployment, err = Parse(document)
		if err != nil {
			var list ErrorList
			if !errors.As(err, &list) {
				list = ErrorList{schemaError(nil, nil, "%v", err)}
			}
			for _, e := range list {
				if e.Line > 0 {
					e.Line += lines
				}
			}
			result.Errors = list
		}

		results = append(results, result)
		index++
	}
}

// documentStarts returns, for every document the YAML reader yields, the number of stream lines
// before it. A document is a run of lines between separator lines.
func documentStarts(stream []byte) []int {
	lines := bytes.Split(stream, []byte("\n"))
	if len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}

	var (
		starts []int
		inside bool
	)
	for i, line := range lines {
		if bytes.HasPrefix(line, []byte("---")) {
			inside = false
			continue
		}
		if !inside {
			starts = append(starts, i)
			inside = true
		}
	}
	return starts
}

func isEmptyDocument(node *yaml.Node) bool {
	switch len(node.Content) {
	case 0:
		return true
	case 1:
		content := node.Content[0]
		return content.Kind == yaml.ScalarNode && content.Style == 0 && content.Value == ""
	default:
		return false
	}
}

func stripComments(document []byte) []byte {
	var out [][]byte
	for _, line := range bytes.Split(document, []byte("\n")) {
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && trimmed[0] == '#' {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

type decoder struct {
	errs  ErrorList
	lines map[string]int
}

func (dec *decoder) fail(node *yaml.Node, err *Error) {
	if node != nil {
		err.Line = node.Line
	}
	dec.errs = append(dec.errs, err)
}

// line returns the source line of path, falling back to its closest decoded ancestor.
func (dec *decoder) line(path string) int {
	for path != "" {
		if line, ok := dec.lines[path]; ok {
			return line
		}
		path = path[:max(strings.LastIndexAny(path, ".["), 0)]
	}
	return 0
}

func pathString(path *field.Path) string {
	if path == nil {
		return ""
	}
	return path.String()
}

func resolve(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

// object checks that node is a mapping holding only known keys and every required key.
// Null is never a value: an optional key is left out instead, so that rendering keeps the document.
func (dec *decoder) object(node *yaml.Node, path *field.Path, required []string, optional ...string) map[string]*yaml.Node {
	node = resolve(node)
	dec.lines[pathString(path)] = node.Line

	if node.Kind != yaml.MappingNode {
		dec.fail(node, schemaError(path, nil, "expected a mapping but got %s", describe(node)))
		return nil
	}

	result := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := resolve(node.Content[i]), resolve(node.Content[i+1])
		child := path.Child(key.Value)

		switch {
		case !slices.Contains(required, key.Value) && !slices.Contains(optional, key.Value):
			dec.fail(key, schemaError(child, nil, "unknown field"))
			continue
		case result[key.Value] != nil:
			dec.fail(key, schemaError(child, nil, "duplicate field"))
			continue
		case isNull(value) && slices.Contains(optional, key.Value):
			dec.fail(value, schemaError(child, nil, "optional field must be omitted rather than null"))
			continue
		}

		result[key.Value] = value
	}

	for _, key := range required {
		value, ok := result[key]
		switch {
		case !ok:
			dec.fail(node, schemaError(path.Child(key), nil, "required field is missing"))
		case isNull(value):
			dec.fail(value, schemaError(path.Child(key), nil, "required field must not be null"))
			delete(result, key)
		}
	}

	return result
}

func (dec *decoder) sequence(node *yaml.Node, path *field.Path) []*yaml.Node {
	node = resolve(node)
	dec.lines[pathString(path)] = node.Line

	if node.Kind != yaml.SequenceNode {
		dec.fail(node, schemaError(path, nil, "expected a sequence but got %s", describe(node)))
		return nil
	}
	return node.Content
}

func (dec *decoder) str(node *yaml.Node, path *field.Path) string {
	node = resolve(node)
	dec.lines[pathString(path)] = node.Line

	if node.Kind != yaml.ScalarNode || node.Tag != "!!str" {
		dec.fail(node, schemaError(path, nil, "expected a string but got %s", describe(node)))
		return ""
	}
	return node.Value
}

func (dec *decoder) integer(node *yaml.Node, path *field.Path) int32 {
	node = resolve(node)
	dec.lines[pathString(path)] = node.Line

	if node.Kind != yaml.ScalarNode || node.Tag != "!!int" {
		dec.fail(node, schemaError(path, nil, "expected an integer but got %s", describe(node)))
		return 0
	}

	value, err := strconv.ParseInt(node.Value, 0, 32)
	if errors.Is(err, strconv.ErrRange) {
		dec.fail(node, rangeError(path, node.Value, "integer overflows a 32-bit field"))
		return 0
	}
	if err != nil {
		dec.fail(node, schemaError(path, node.Value, "invalid integer"))
		return 0
	}

	return int32(value)
}

func (dec *decoder) boolean(node *yaml.Node, path *field.Path) bool {
	node = resolve(node)
	dec.lines[pathString(path)] = node.Line

	var value bool
	if node.Kind != yaml.ScalarNode || node.Tag != "!!bool" || node.Decode(&value) != nil {
		dec.fail(node, schemaError(path, nil, "expected a boolean but got %s", describe(node)))
		return false
	}
	return value
}

func (dec *decoder) stringMap(node *yaml.Node, path *field.Path) map[string]string {
	node = resolve(node)
	dec.lines[pathString(path)] = node.Line

	if node.Kind != yaml.MappingNode {
		dec.fail(node, schemaError(path, nil, "expected a mapping but got %s", describe(node)))
		return nil
	}

	result := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := resolve(node.Content[i])
		if key.Kind != yaml.ScalarNode {
			dec.fail(key, schemaError(path, nil, "expected a string key but got %s", describe(key)))
			continue
		}
		if _, ok := result[key.Value]; ok {
			dec.fail(key, schemaError(path.Key(key.Value), nil, "duplicate key"))
			continue
		}
		result[key.Value] = dec.str(node.Content[i+1], path.Key(key.Value))
	}

	return result
}

func describe(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return "null"
		case "!!str":
			return fmt.Sprintf("string %q", node.Value)
		default:
			return fmt.Sprintf("%s %s", strings.TrimPrefix(node.ShortTag(), "!!"), node.Value)
		}
	default:
		return "an unsupported node"
	}
}

func (dec *decoder) deployment(node *yaml.Node) *Deployment {
	var deployment Deployment

	root := dec.object(node, nil, []string{"apiVersion", "kind", "metadata", "spec"})
	if value := root["apiVersion"]; value != nil {
		deployment.APIVersion = dec.str(value, field.NewPath("apiVersion"))
	}
	if value := root["kind"]; value != nil {
		deployment.Kind = dec.str(value, field.NewPath("kind"))
	}
	if value := root["metadata"]; value != nil {
		deployment.Metadata = dec.metadata(value, field.NewPath("metadata"))
	}
	if value := root["spec"]; value != nil {
		deployment.Spec = dec.deploymentSpec(value, field.NewPath("spec"))
	}

	return &deployment
}

func (dec *decoder) metadata(node *yaml.Node, path *field.Path) (metadata Metadata) {
	fields := dec.object(node, path, []string{"name"}, "namespace", "labels")
	if value := fields["name"]; value != nil {
		metadata.Name = dec.str(value, path.Child("name"))
	}
	if value := fields["namespace"]; value != nil {
		metadata.Namespace = dec.str(value, path.Child("namespace"))
		if metadata.Namespace == "" && resolve(value).Tag == "!!str" {
			dec.fail(value, schemaError(path.Child("namespace"), nil, "must not be empty"))
		}
	}
	if value := fields["labels"]; value != nil {
		metadata.Labels = dec.stringMap(value, path.Child("labels"))
	}
	return
}

func (dec *decoder) deploymentSpec(node *yaml.Node, path *field.Path) (spec DeploymentSpec) {
	fields := dec.object(node, path, []string{"replicas", "selector", "template"})
	if value := fields["replicas"]; value != nil {
		spec.Replicas = dec.integer(value, path.Child("replicas"))
	}
	if value := fields["selector"]; value != nil {
		selectorPath := path.Child("selector")
		selector := dec.object(value, selectorPath, []string{"matchLabels"})
		if labels := selector["matchLabels"]; labels != nil {
			spec.Selector.MatchLabels = dec.stringMap(labels, selectorPath.Child("matchLabels"))
		}
	}
	if value := fields["template"]; value != nil {
		spec.Template = dec.podTemplate(value, path.Child("template"))
	}
	return
}

func (dec *decoder) podTemplate(node *yaml.Node, path *field.Path) (template PodTemplateSpec) {
	fields := dec.object(node, path, []string{"metadata", "spec"})

	if value := fields["metadata"]; value != nil {
		metadataPath := path.Child("metadata")
		metadata := dec.object(value, metadataPath, []string{"labels"})
		if labels := metadata["labels"]; labels != nil {
			template.Metadata.Labels = dec.stringMap(labels, metadataPath.Child("labels"))
		}
	}

	if value := fields["spec"]; value != nil {
		specPath := path.Child("spec")
		spec := dec.object(value, specPath, []string{"containers"}, "volumes")
		if containers := spec["containers"]; containers != nil {
			containersPath := specPath.Child("containers")
			for i, item := range dec.sequence(containers, containersPath) {
				template.Spec.Containers = append(template.Spec.Containers, dec.container(item, containersPath.Index(i)))
			}
		}
		if volumes := spec["volumes"]; volumes != nil {
			volumesPath := specPath.Child("volumes")
			template.Spec.Volumes = List[Volume]{}
			for i, item := range dec.sequence(volumes, volumesPath) {
				template.Spec.Volumes = append(template.Spec.Volumes, dec.volume(item, volumesPath.Index(i)))
			}
		}
	}

	return
}

func (dec *decoder) container(node *yaml.Node, path *field.Path) (container Container) {
	fields := dec.object(node, path, []string{"name", "image"}, "env", "ports", "volumeMounts")
	if value := fields["name"]; value != nil {
		container.Name = dec.str(value, path.Child("name"))
	}
	if value := fields["image"]; value != nil {
		container.Image = dec.str(value, path.Child("image"))
	}

	if value := fields["env"]; value != nil {
		envPath := path.Child("env")
		container.Env = List[EnvVar]{}
		for i, item := range dec.sequence(value, envPath) {
			itemPath := envPath.Index(i)
			env := dec.object(item, itemPath, []string{"name"}, "value")

			var variable EnvVar
			if name := env["name"]; name != nil {
				variable.Name = dec.str(name, itemPath.Child("name"))
			}
			if value := env["value"]; value != nil {
				variable.Value = ptr.To(dec.str(value, itemPath.Child("value")))
			}
			container.Env = append(container.Env, variable)
		}
	}

	if value := fields["ports"]; value != nil {
		portsPath := path.Child("ports")
		container.Ports = List[ContainerPort]{}
		for i, item := range dec.sequence(value, portsPath) {
			itemPath := portsPath.Index(i)
			port := dec.object(item, itemPath, []string{"containerPort"})

			var containerPort ContainerPort
			if number := port["containerPort"]; number != nil {
				containerPort.ContainerPort = dec.integer(number, itemPath.Child("containerPort"))
			}
			container.Ports = append(container.Ports, containerPort)
		}
	}

	if value := fields["volumeMounts"]; value != nil {
		mountsPath := path.Child("volumeMounts")
		container.VolumeMounts = List[VolumeMount]{}
		for i, item := range dec.sequence(value, mountsPath) {
			itemPath := mountsPath.Index(i)
			mount := dec.object(item, itemPath, []string{"name", "mountPath"}, "readOnly")

			var volumeMount VolumeMount
			if name := mount["name"]; name != nil {
				volumeMount.Name = dec.str(name, itemPath.Child("name"))
			}
			if mountPath := mount["mountPath"]; mountPath != nil {
				volumeMount.MountPath = dec.str(mountPath, itemPath.Child("mountPath"))
			}
			if readOnly := mount["readOnly"]; readOnly != nil {
				volumeMount.ReadOnly = ptr.To(dec.boolean(readOnly, itemPath.Child("readOnly")))
			}
			container.VolumeMounts = append(container.VolumeMounts, volumeMount)
		}
	}

	return
}

func (dec *decoder) volume(node *yaml.Node, path *field.Path) (volume Volume) {
	fields := dec.object(node, path, []string{"name"}, "secret", "persistentVolumeClaim")
	if value := fields["name"]; value != nil {
		volume.Name = dec.str(value, path.Child("name"))
	}

	if value := fields["secret"]; value != nil {
		secretPath := path.Child("secret")
		secret := dec.object(value, secretPath, []string{"secretName"})
		volume.Secret = &SecretVolumeSource{}
		if name := secret["secretName"]; name != nil {
			volume.Secret.SecretName = dec.str(name, secretPath.Child("secretName"))
		}
	}

	if value := fields["persistentVolumeClaim"]; value != nil {
		claimPath := path.Child("persistentVolumeClaim")
		claim := dec.object(value, claimPath, []string{"claimName"})
		volume.PersistentVolumeClaim = &PersistentVolumeClaimVolumeSource{}
		if name := claim["claimName"]; name != nil {
			volume.PersistentVolumeClaim.ClaimName = dec.str(name, claimPath.Child("claimName"))
		}
	}

	return
}
