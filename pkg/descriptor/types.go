package descriptor

import (
	"maps"
	"slices"

	"k8s.io/utils/ptr"
)

const (
	APIVersion = "apps/v1"
	Kind       = "Deployment"
)

// Deployment is the declarative description of a set of identical pod replicas.
type Deployment struct {
	APIVersion string         `yaml:"apiVersion" json:"apiVersion"`
	Kind       string         `yaml:"kind" json:"kind"`
	Metadata   Metadata       `yaml:"metadata" json:"metadata"`
	Spec       DeploymentSpec `yaml:"spec" json:"spec"`
}

type Metadata struct {
	Name      string `yaml:"name" json:"name"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Labels    Labels `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Labels is an optional label set. An empty set renders as {} and only a nil one is omitted.
type Labels map[string]string

func (labels Labels) IsZero() bool { return labels == nil }

// List is an optional sequence. An empty list renders as [] and only a nil one is omitted,
// so a document keeps the lists it declared.
type List[T any] []T

func (list List[T]) IsZero() bool { return list == nil }

type DeploymentSpec struct {
	Replicas int32           `yaml:"replicas" json:"replicas"`
	Selector Selector        `yaml:"selector" json:"selector"`
	Template PodTemplateSpec `yaml:"template" json:"template"`
}

type Selector struct {
	MatchLabels map[string]string `yaml:"matchLabels" json:"matchLabels"`
}

type PodTemplateSpec struct {
	Metadata TemplateMetadata `yaml:"metadata" json:"metadata"`
	Spec     PodSpec          `yaml:"spec" json:"spec"`
}

type TemplateMetadata struct {
	Labels map[string]string `yaml:"labels" json:"labels"`
}

type PodSpec struct {
	Containers []Container   `yaml:"containers" json:"containers"`
	Volumes    List[Volume] `yaml:"volumes,omitempty" json:"volumes,omitempty"`
}

type Container struct {
	Name         string              `yaml:"name" json:"name"`
	Image        string              `yaml:"image" json:"image"`
	Env          List[EnvVar]        `yaml:"env,omitempty" json:"env,omitempty"`
	Ports        List[ContainerPort] `yaml:"ports,omitempty" json:"ports,omitempty"`
	VolumeMounts List[VolumeMount]   `yaml:"volumeMounts,omitempty" json:"volumeMounts,omitempty"`
}

// PortNumbers returns the TCP ports the container listens on, in declaration order.
func (container Container) PortNumbers() []int32 {
	result := make([]int32, len(container.Ports))
	for i, port := range container.Ports {
		result[i] = port.ContainerPort
	}
	return result
}

// EnvVar is an environment variable. A nil Value is an absent value field, which the container
// sees as an empty string.
type EnvVar struct {
	Name  string  `yaml:"name" json:"name"`
	Value *string `yaml:"value,omitempty" json:"value,omitempty"`
}

type ContainerPort struct {
	ContainerPort int32 `yaml:"containerPort" json:"containerPort"`
}

type VolumeMount struct {
	Name      string `yaml:"name" json:"name"`
	MountPath string `yaml:"mountPath" json:"mountPath"`
	ReadOnly  *bool  `yaml:"readOnly,omitempty" json:"readOnly,omitempty"`
}

type Volume struct {
	Name         string `yaml:"name" json:"name"`
	VolumeSource `yaml:",inline"`
}

// VolumeSource is a tagged union: exactly one member is set on a valid volume.
type VolumeSource struct {
	Secret                *SecretVolumeSource                `yaml:"secret,omitempty" json:"secret,omitempty"`
	PersistentVolumeClaim *PersistentVolumeClaimVolumeSource `yaml:"persistentVolumeClaim,omitempty" json:"persistentVolumeClaim,omitempty"`
}

type SecretVolumeSource struct {
	SecretName string `yaml:"secretName" json:"secretName"`
}

type PersistentVolumeClaimVolumeSource struct {
	ClaimName string `yaml:"claimName" json:"claimName"`
}

// Sources returns the names of the members that are set, in declaration order.
func (source VolumeSource) Sources() []string {
	var result []string
	if source.Secret != nil {
		result = append(result, "secret")
	}
	if source.PersistentVolumeClaim != nil {
		result = append(result, "persistentVolumeClaim")
	}
	return result
}

// DeepCopy returns a copy of the deployment that shares no maps, slices or pointers with the receiver.
func (deployment *Deployment) DeepCopy() *Deployment {
	if deployment == nil {
		return nil
	}

	out := *deployment
	out.Metadata.Labels = maps.Clone(deployment.Metadata.Labels)
	out.Spec.Selector.MatchLabels = maps.Clone(deployment.Spec.Selector.MatchLabels)
	out.Spec.Template.Metadata.Labels = maps.Clone(deployment.Spec.Template.Metadata.Labels)

	out.Spec.Template.Spec.Containers = slices.Clone(deployment.Spec.Template.Spec.Containers)
	for i, container := range out.Spec.Template.Spec.Containers {
		copied := &out.Spec.Template.Spec.Containers[i]
		copied.Env = slices.Clone(container.Env)
		for j, env := range copied.Env {
			if env.Value != nil {
				copied.Env[j].Value = ptr.To(*env.Value)
			}
		}
		copied.Ports = slices.Clone(container.Ports)
		copied.VolumeMounts = slices.Clone(container.VolumeMounts)
		for j, mount := range copied.VolumeMounts {
			if mount.ReadOnly != nil {
				copied.VolumeMounts[j].ReadOnly = ptr.To(*mount.ReadOnly)
			}
		}
	}

	out.Spec.Template.Spec.Volumes = slices.Clone(deployment.Spec.Template.Spec.Volumes)
	for i, volume := range out.Spec.Template.Spec.Volumes {
		if volume.Secret != nil {
			secret := *volume.Secret
			out.Spec.Template.Spec.Volumes[i].Secret = &secret
		}
		if volume.PersistentVolumeClaim != nil {
			claim := *volume.PersistentVolumeClaim
			out.Spec.Template.Spec.Volumes[i].PersistentVolumeClaim = &claim
		}
	}

	return &out
}
