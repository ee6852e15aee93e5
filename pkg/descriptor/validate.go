package descriptor

import (
	"maps"
	"slices"
	"strings"

	"github.com/distribution/reference"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Validate reports every violation of the descriptor invariants. It never stops at the first error.
func Validate(deployment *Deployment) ErrorList {
	if deployment == nil {
		return ErrorList{schemaError(nil, nil, "deployment is nil")}
	}

	var errs ErrorList

	if deployment.APIVersion != APIVersion {
		errs = append(errs, schemaError(field.NewPath("apiVersion"), deployment.APIVersion, "unsupported apiVersion: want %q", APIVersion))
	}
	if deployment.Kind != Kind {
		errs = append(errs, schemaError(field.NewPath("kind"), deployment.Kind, "unsupported kind: want %q", Kind))
	}

	errs = append(errs, validateMetadata(deployment.Metadata, field.NewPath("metadata"))...)
	errs = append(errs, validateDeploymentSpec(deployment.Spec, field.NewPath("spec"))...)

	return errs
}

func validateMetadata(metadata Metadata, path *field.Path) (errs ErrorList) {
	errs = append(errs, validateName(metadata.Name, path.Child("name"), validation.IsDNS1123Subdomain)...)
	if metadata.Namespace != "" {
		errs = append(errs, validateName(metadata.Namespace, path.Child("namespace"), validation.IsDNS1123Label)...)
	}
	errs = append(errs, validateLabels(metadata.Labels, path.Child("labels"))...)
	return
}

func validateName(name string, path *field.Path, isValid func(string) []string) ErrorList {
	if name == "" {
		return ErrorList{schemaError(path, nil, "required value")}
	}
	var errs ErrorList
	for _, msg := range isValid(name) {
		errs = append(errs, schemaError(path, name, "%s", msg))
	}
	return errs
}

func validateLabels(values map[string]string, path *field.Path) (errs ErrorList) {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		for _, msg := range validation.IsQualifiedName(key) {
			errs = append(errs, schemaError(path, key, "invalid label key: %s", msg))
		}
		for _, msg := range validation.IsValidLabelValue(values[key]) {
			errs = append(errs, schemaError(path.Key(key), values[key], "invalid label value: %s", msg))
		}
	}
	return
}

func validateDeploymentSpec(spec DeploymentSpec, path *field.Path) (errs ErrorList) {
	if spec.Replicas < 0 {
		errs = append(errs, rangeError(path.Child("replicas"), spec.Replicas, "must be greater than or equal to 0"))
	}

	selectorPath := path.Child("selector", "matchLabels")
	templateLabelsPath := path.Child("template", "metadata", "labels")

	errs = append(errs, validateLabels(spec.Selector.MatchLabels, selectorPath)...)
	errs = append(errs, validateLabels(spec.Template.Metadata.Labels, templateLabelsPath)...)

	if len(spec.Selector.MatchLabels) == 0 {
		errs = append(errs, schemaError(selectorPath, nil, "selector must not be empty"))
	} else if !labels.SelectorFromSet(spec.Selector.MatchLabels).Matches(labels.Set(spec.Template.Metadata.Labels)) {
		for _, key := range slices.Sorted(maps.Keys(spec.Selector.MatchLabels)) {
			want := spec.Selector.MatchLabels[key]
			if got, ok := spec.Template.Metadata.Labels[key]; !ok || got != want {
				errs = append(errs, schemaError(selectorPath.Key(key), want, "selector label is not carried by the pod template"))
			}
		}
	}

	errs = append(errs, validatePodSpec(spec.Template.Spec, path.Child("template", "spec"))...)
	return
}

func validatePodSpec(spec PodSpec, path *field.Path) (errs ErrorList) {
	volumes := make(map[string]bool, len(spec.Volumes))

	volumesPath := path.Child("volumes")
	for i, volume := range spec.Volumes {
		itemPath := volumesPath.Index(i)
		errs = append(errs, validateName(volume.Name, itemPath.Child("name"), validation.IsDNS1123Label)...)
		if volume.Name != "" && volumes[volume.Name] {
			errs = append(errs, schemaError(itemPath.Child("name"), volume.Name, "duplicate volume name"))
		}
		volumes[volume.Name] = true
		errs = append(errs, validateVolumeSource(volume.VolumeSource, itemPath)...)
	}

	containersPath := path.Child("containers")
	if len(spec.Containers) == 0 {
		errs = append(errs, schemaError(containersPath, nil, "at least one container is required"))
	}

	names := make(map[string]bool, len(spec.Containers))
	for i, container := range spec.Containers {
		itemPath := containersPath.Index(i)
		if container.Name != "" && names[container.Name] {
			errs = append(errs, schemaError(itemPath.Child("name"), container.Name, "duplicate container name"))
		}
		names[container.Name] = true
		errs = append(errs, validateContainer(container, itemPath, volumes)...)
	}

	return
}

func validateVolumeSource(source VolumeSource, path *field.Path) (errs ErrorList) {
	switch sources := source.Sources(); len(sources) {
	case 0:
		return ErrorList{schemaError(path, nil, "volume must declare a source: one of secret, persistentVolumeClaim")}
	case 1:
	default:
		return ErrorList{schemaError(path, strings.Join(sources, ", "), "volume must declare exactly one source")}
	}

	if source.Secret != nil && source.Secret.SecretName == "" {
		errs = append(errs, schemaError(path.Child("secret", "secretName"), nil, "required value"))
	}
	if source.PersistentVolumeClaim != nil && source.PersistentVolumeClaim.ClaimName == "" {
		errs = append(errs, schemaError(path.Child("persistentVolumeClaim", "claimName"), nil, "required value"))
	}
	return
}

func validateContainer(container Container, path *field.Path, volumes map[string]bool) (errs ErrorList) {
	errs = append(errs, validateName(container.Name, path.Child("name"), validation.IsDNS1123Label)...)
	errs = append(errs, validateImage(container.Image, path.Child("image"))...)

	env := make(map[string]bool, len(container.Env))
	for i, variable := range container.Env {
		namePath := path.Child("env").Index(i).Child("name")
		if variable.Name == "" {
			errs = append(errs, schemaError(namePath, nil, "required value"))
			continue
		}
		for _, msg := range validation.IsEnvVarName(variable.Name) {
			errs = append(errs, schemaError(namePath, variable.Name, "%s", msg))
		}
		if env[variable.Name] {
			errs = append(errs, schemaError(namePath, variable.Name, "duplicate environment variable"))
		}
		env[variable.Name] = true
	}

	ports := make(map[int32]bool, len(container.Ports))
	for i, port := range container.Ports {
		portPath := path.Child("ports").Index(i).Child("containerPort")
		if len(validation.IsValidPortNum(int(port.ContainerPort))) > 0 {
			errs = append(errs, rangeError(portPath, port.ContainerPort, "must be between 1 and 65535, inclusive"))
			continue
		}
		if ports[port.ContainerPort] {
			errs = append(errs, schemaError(portPath, port.ContainerPort, "duplicate port"))
		}
		ports[port.ContainerPort] = true
	}

	mountPaths := make(map[string]bool, len(container.VolumeMounts))
	for i, mount := range container.VolumeMounts {
		itemPath := path.Child("volumeMounts").Index(i)

		switch {
		case mount.Name == "":
			errs = append(errs, schemaError(itemPath.Child("name"), nil, "required value"))
		case !volumes[mount.Name]:
			errs = append(errs, referenceError(itemPath.Child("name"), mount.Name, "volume is not declared in the pod"))
		}

		switch {
		case mount.MountPath == "":
			errs = append(errs, schemaError(itemPath.Child("mountPath"), nil, "required value"))
		case mountPaths[mount.MountPath]:
			errs = append(errs, schemaError(itemPath.Child("mountPath"), mount.MountPath, "duplicate mount path"))
		}
		mountPaths[mount.MountPath] = true
	}

	return
}

func validateImage(image string, path *field.Path) ErrorList {
	if image == "" {
		return ErrorList{schemaError(path, nil, "required value")}
	}

	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return ErrorList{schemaError(path, image, "invalid image reference: %v", err)}
	}

	_, tagged := named.(reference.Tagged)
	_, digested := named.(reference.Digested)
	if !tagged && !digested {
		return ErrorList{schemaError(path, image, "image must be in repository:tag form")}
	}

	return nil
}
