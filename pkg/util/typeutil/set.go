// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"sync"

	"github.com/samber/lo"
)

// ConcurrentSet 是并发安全的集合，用于标记正在处理中的键。
type ConcurrentSet[T comparable] struct {
	mu    sync.RWMutex
	inner map[T]struct{}
}

func NewConcurrentSet[T comparable]() *ConcurrentSet[T] {
	return &ConcurrentSet[T]{inner: make(map[T]struct{})}
}

// Insert 插入元素，元素已存在时返回 false。
func (set *ConcurrentSet[T]) Insert(element T) bool {
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, ok := set.inner[element]; ok {
		return false
	}
	set.inner[element] = struct{}{}
	return true
}

// Remove 删除元素，元素不存在时返回 false。
func (set *ConcurrentSet[T]) Remove(element T) bool {
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, ok := set.inner[element]; !ok {
		return false
	}
	delete(set.inner, element)
	return true
}

// Contain 当所有元素都在集合中时返回 true。
func (set *ConcurrentSet[T]) Contain(elements ...T) bool {
	set.mu.RLock()
	defer set.mu.RUnlock()
	for _, e := range elements {
		if _, ok := set.inner[e]; !ok {
			return false
		}
	}
	return true
}

func (set *ConcurrentSet[T]) Len() int {
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.inner)
}

// Collect 返回集合元素的快照，顺序不确定。
func (set *ConcurrentSet[T]) Collect() []T {
	set.mu.RLock()
	defer set.mu.RUnlock()
	return lo.Keys(set.inner)
}
