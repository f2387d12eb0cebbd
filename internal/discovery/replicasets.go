/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package discovery

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/optipod/optipod/internal/owners"
)

// ReplicaSetOwnerLister lists every ReplicaSet cluster-wide and resolves
// its owner from ownerReferences, satisfying owners.ReplicaSetLister for
// the one-time initial population a freshly started enforcer process
// needs before it can resolve any Deployment-owned Pod from its
// in-memory index alone.
type ReplicaSetOwnerLister struct {
	Client client.Client
}

// NewReplicaSetOwnerLister builds a lister over the given client.
func NewReplicaSetOwnerLister(c client.Client) *ReplicaSetOwnerLister {
	return &ReplicaSetOwnerLister{Client: c}
}

// ListReplicaSetOwners implements owners.ReplicaSetLister.
func (l *ReplicaSetOwnerLister) ListReplicaSetOwners(ctx context.Context) ([]owners.ReplicaSetOwnerInfo, error) {
	list := &appsv1.ReplicaSetList{}
	if err := l.Client.List(ctx, list); err != nil {
		return nil, err
	}

	out := make([]owners.ReplicaSetOwnerInfo, 0, len(list.Items))
	for _, rs := range list.Items {
		info := owners.ReplicaSetOwnerInfo{Namespace: rs.Namespace, RSName: rs.Name}
		for _, ref := range rs.OwnerReferences {
			if ref.Controller != nil && *ref.Controller {
				info.OwnerKind = ref.Kind
				info.OwnerName = ref.Name
				break
			}
		}
		if info.OwnerKind == "" {
			// No controller owner: the ReplicaSet itself is the logical
			// owner identity pods under it resolve to.
			info.OwnerKind = "ReplicaSet"
			info.OwnerName = rs.Name
		}
		out = append(out, info)
	}
	return out, nil
}
