package k8s

import (
	"fmt"
	"maps"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/validation/field"
	appsv1ac "k8s.io/client-go/applyconfigurations/apps/v1"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
	metav1ac "k8s.io/client-go/applyconfigurations/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

// ToApplyConfiguration expresses the deployment as a server side apply request.
// Only the fields the descriptor declares are set so that the request claims ownership of nothing else.
func ToApplyConfiguration(deployment *descriptor.Deployment, namespace string) *appsv1ac.DeploymentApplyConfiguration {
	spec := deployment.Spec

	podSpec := corev1ac.PodSpec()
	for _, container := range spec.Template.Spec.Containers {
		podSpec.WithContainers(toContainer(container))
	}
	for _, volume := range spec.Template.Spec.Volumes {
		podSpec.WithVolumes(toVolume(volume))
	}

	result := appsv1ac.Deployment(deployment.Metadata.Name, namespace).
		WithSpec(
			appsv1ac.DeploymentSpec().
				WithReplicas(spec.Replicas).
				WithSelector(metav1ac.LabelSelector().WithMatchLabels(spec.Selector.MatchLabels)).
				WithTemplate(
					corev1ac.PodTemplateSpec().
						WithLabels(spec.Template.Metadata.Labels).
						WithSpec(podSpec),
				),
		)

	if len(deployment.Metadata.Labels) > 0 {
		result.WithLabels(deployment.Metadata.Labels)
	}

	return result
}

func toContainer(container descriptor.Container) *corev1ac.ContainerApplyConfiguration {
	result := corev1ac.Container().
		WithName(container.Name).
		WithImage(container.Image)

	for _, env := range container.Env {
		variable := corev1ac.EnvVar().WithName(env.Name)
		if env.Value != nil {
			variable.WithValue(*env.Value)
		}
		result.WithEnv(variable)
	}
	for _, port := range container.Ports {
		result.WithPorts(corev1ac.ContainerPort().WithContainerPort(port.ContainerPort).WithProtocol(corev1.ProtocolTCP))
	}
	for _, mount := range container.VolumeMounts {
		volumeMount := corev1ac.VolumeMount().
			WithName(mount.Name).
			WithMountPath(mount.MountPath)
		if mount.ReadOnly != nil {
			volumeMount.WithReadOnly(*mount.ReadOnly)
		}
		result.WithVolumeMounts(volumeMount)
	}

	return result
}

func toVolume(volume descriptor.Volume) *corev1ac.VolumeApplyConfiguration {
	result := corev1ac.Volume().WithName(volume.Name)
	switch {
	case volume.Secret != nil:
		result.WithSecret(corev1ac.SecretVolumeSource().WithSecretName(volume.Secret.SecretName))
	case volume.PersistentVolumeClaim != nil:
		result.WithPersistentVolumeClaim(
			corev1ac.PersistentVolumeClaimVolumeSource().WithClaimName(volume.PersistentVolumeClaim.ClaimName),
		)
	}
	return result
}

// FromAPI converts a Deployment read from the cluster into a descriptor. Empty env values and
// false readOnly flags are left unset. Fields defaulted by the server that the descriptor cannot
// express are ignored; declared features it cannot express (match expressions, env sources,
// non TCP ports, other volume types) are schema errors.
func FromAPI(deployment *appsv1.Deployment) (*descriptor.Deployment, error) {
	var errs descriptor.ErrorList

	unsupported := func(path *field.Path, format string, args ...any) {
		errs = append(errs, &descriptor.Error{
			Type:   descriptor.ErrorTypeSchema,
			Field:  path.String(),
			Detail: fmt.Sprintf(format, args...),
		})
	}

	result := descriptor.Deployment{
		APIVersion: descriptor.APIVersion,
		Kind:       descriptor.Kind,
		Metadata: descriptor.Metadata{
			Name:      deployment.Name,
			Namespace: deployment.Namespace,
			Labels:    maps.Clone(deployment.Labels),
		},
		Spec: descriptor.DeploymentSpec{
			Replicas: 1,
			Template: descriptor.PodTemplateSpec{
				Metadata: descriptor.TemplateMetadata{Labels: maps.Clone(deployment.Spec.Template.Labels)},
			},
		},
	}

	if deployment.Spec.Replicas != nil {
		result.Spec.Replicas = *deployment.Spec.Replicas
	}

	specPath := field.NewPath("spec")

	if selector := deployment.Spec.Selector; selector != nil {
		result.Spec.Selector.MatchLabels = maps.Clone(selector.MatchLabels)
		if len(selector.MatchExpressions) > 0 {
			unsupported(specPath.Child("selector", "matchExpressions"), "match expressions are not supported")
		}
	}

	podPath := specPath.Child("template", "spec")

	for i, container := range deployment.Spec.Template.Spec.Containers {
		containerPath := podPath.Child("containers").Index(i)

		converted := descriptor.Container{Name: container.Name, Image: container.Image}

		for j, env := range container.Env {
			if env.ValueFrom != nil {
				unsupported(containerPath.Child("env").Index(j).Child("valueFrom"), "environment variable sources are not supported")
				continue
			}
			variable := descriptor.EnvVar{Name: env.Name}
			if env.Value != "" {
				variable.Value = ptr.To(env.Value)
			}
			converted.Env = append(converted.Env, variable)
		}

		for j, port := range container.Ports {
			if port.Protocol != "" && port.Protocol != corev1.ProtocolTCP {
				unsupported(containerPath.Child("ports").Index(j).Child("protocol"), "protocol %s is not supported", port.Protocol)
				continue
			}
			converted.Ports = append(converted.Ports, descriptor.ContainerPort{ContainerPort: port.ContainerPort})
		}

		for _, mount := range container.VolumeMounts {
			volumeMount := descriptor.VolumeMount{Name: mount.Name, MountPath: mount.MountPath}
			if mount.ReadOnly {
				volumeMount.ReadOnly = ptr.To(true)
			}
			converted.VolumeMounts = append(converted.VolumeMounts, volumeMount)
		}

		result.Spec.Template.Spec.Containers = append(result.Spec.Template.Spec.Containers, converted)
	}

	for i, volume := range deployment.Spec.Template.Spec.Volumes {
		converted := descriptor.Volume{Name: volume.Name}
		switch {
		case volume.Secret != nil:
			converted.Secret = &descriptor.SecretVolumeSource{SecretName: volume.Secret.SecretName}
		case volume.PersistentVolumeClaim != nil:
			converted.PersistentVolumeClaim = &descriptor.PersistentVolumeClaimVolumeSource{ClaimName: volume.PersistentVolumeClaim.ClaimName}
		default:
			unsupported(podPath.Child("volumes").Index(i), "volume source is not supported")
			continue
		}
		result.Spec.Template.Spec.Volumes = append(result.Spec.Template.Spec.Volumes, converted)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	return &result, nil
}
