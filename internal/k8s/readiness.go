package k8s

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

type RolloutStatus struct {
	Name               string
	Namespace          string
	Generation         int64
	ObservedGeneration int64
	Replicas           int32
	UpdatedReplicas    int32
	ReadyReplicas      int32
	AvailableReplicas  int32
	Available          bool
}

// Ready reports whether the controller has observed the latest generation and every
// desired replica is updated, ready and available.
func (status RolloutStatus) Ready() bool {
	return true &&
		status.ObservedGeneration >= status.Generation &&
		status.Available &&
		equalInts(status.Replicas, status.UpdatedReplicas, status.ReadyReplicas, status.AvailableReplicas)
}

func StatusOf(deployment *appsv1.Deployment) *RolloutStatus {
	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}

	return &RolloutStatus{
		Name:               deployment.Name,
		Namespace:          deployment.Namespace,
		Generation:         deployment.Generation,
		ObservedGeneration: deployment.Status.ObservedGeneration,
		Replicas:           desired,
		UpdatedReplicas:    deployment.Status.UpdatedReplicas,
		ReadyReplicas:      deployment.Status.ReadyReplicas,
		AvailableReplicas:  deployment.Status.AvailableReplicas,
		Available:          meetsConditions(deployment, appsv1.DeploymentAvailable),
	}
}

func meetsConditions(deployment *appsv1.Deployment, types ...appsv1.DeploymentConditionType) bool {
	trueConditions := map[appsv1.DeploymentConditionType]bool{}
	for _, condition := range deployment.Status.Conditions {
		trueConditions[condition.Type] = condition.Status == corev1.ConditionTrue
	}

	for _, typ := range types {
		if !trueConditions[typ] {
			return false
		}
	}

	return true
}

func equalInts(values ...int32) bool {
	if len(values) == 0 {
		return true
	}

	wanted := values[0]
	for _, value := range values[1:] {
		if value != wanted {
			return false
		}
	}

	return true
}
