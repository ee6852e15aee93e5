package descriptor

import (
	"cmp"
	"path"

	"k8s.io/utils/ptr"
)

// Defaults of the image server deployment.
const (
	ImgservName         = "dax-imgserv"
	ImgservImage        = "lsstsqre/dax-imgserv:latest"
	ImgservPort         = 5000
	ImgservConfigSecret = "dax-webserv-config"
	ImgservDatasetClaim = "dax-imgserv-datasets-claim"
	ImgservConfigDir    = "/config"
	ImgservConfigFile   = "webserv.ini"
	ImgservDatasetDir   = "/datasets"

	// EnvWebservConfig is read by the image server for the path of its configuration file.
	EnvWebservConfig = "WEBSERV_CONFIG"
)

type ImgservOptions struct {
	Name         string
	Namespace    string
	Image        string
	Replicas     int32
	Port         int32
	ConfigSecret string
	DatasetClaim string
	ConfigDir    string
	DatasetDir   string
	Env          []EnvVar
}

// Imgserv builds the image server deployment. Zero valued options fall back to the defaults above,
// except Replicas where zero is a legitimate value.
func Imgserv(opts ImgservOptions) *Deployment {
	name := cmp.Or(opts.Name, ImgservName)
	configDir := cmp.Or(opts.ConfigDir, ImgservConfigDir)
	labels := func() map[string]string { return map[string]string{"app": name} }

	env := append(
		[]EnvVar{{Name: EnvWebservConfig, Value: ptr.To(path.Join(configDir, ImgservConfigFile))}},
		opts.Env...,
	)

	return &Deployment{
		APIVersion: APIVersion,
		Kind:       Kind,
		Metadata: Metadata{
			Name:      name,
			Namespace: opts.Namespace,
			Labels:    labels(),
		},
		Spec: DeploymentSpec{
			Replicas: opts.Replicas,
			Selector: Selector{MatchLabels: labels()},
			Template: PodTemplateSpec{
				Metadata: TemplateMetadata{Labels: labels()},
				Spec: PodSpec{
					Containers: []Container{
						{
							Name:  name,
							Image: cmp.Or(opts.Image, ImgservImage),
							Env:   env,
							Ports: []ContainerPort{{ContainerPort: cmp.Or(opts.Port, ImgservPort)}},
							VolumeMounts: []VolumeMount{
								{Name: "config", MountPath: configDir, ReadOnly: ptr.To(true)},
								{Name: "datasets", MountPath: cmp.Or(opts.DatasetDir, ImgservDatasetDir), ReadOnly: ptr.To(true)},
							},
						},
					},
					Volumes: []Volume{
						{
							Name: "config",
							VolumeSource: VolumeSource{
								Secret: &SecretVolumeSource{SecretName: cmp.Or(opts.ConfigSecret, ImgservConfigSecret)},
							},
						},
						{
							Name: "datasets",
							VolumeSource: VolumeSource{
								PersistentVolumeClaim: &PersistentVolumeClaimVolumeSource{ClaimName: cmp.Or(opts.DatasetClaim, ImgservDatasetClaim)},
							},
						},
					},
				},
			},
		},
	}
}
