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

package metrics

import (
	// #nosec
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// liveSessionNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	liveSessionNamespace = "livesession"

	// 以下为当前使用的通用标签名。
	fromStatusLabelName = "from"
	toStatusLabelName   = "to"
	operationLabelName  = "op"
	queueLabelName      = "queue"
	fieldLabelName      = "field"
)

var (
	// buckets 为请求耗时直方图的桶划分，单位为毫秒。
	// 实际桶分布为：
	// [1 2 4 8 16 32 64 128 256 512 1024 2048 4096 8192 16384 32768 65536 1.31072e+05]
	buckets = prometheus.ExponentialBuckets(1, 2, 18)

	// TransitionsTotal 统计成功的状态迁移次数。
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: liveSessionNamespace,
			Name:      "transitions_total",
			Help:      "count of committed live session status transitions",
		}, []string{fromStatusLabelName, toStatusLabelName})

	// TransitionFailures 统计被拒绝或持久化失败的迁移次数。
	TransitionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: liveSessionNamespace,
			Name:      "transition_failures_total",
			Help:      "count of rejected or failed live session transitions",
		}, []string{operationLabelName})

	TransitionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: liveSessionNamespace,
			Name:      "transition_latency",
			Help:      "latency of live session transitions in milliseconds",
			Buckets:   buckets,
		}, []string{operationLabelName})

	RegistrySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: liveSessionNamespace,
			Name:      "registry_size",
			Help:      "number of live sessions currently registered",
		})

	QueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: liveSessionNamespace,
			Name:      "queue_length",
			Help:      "number of pending entries in each scheduling queue",
		}, []string{queueLabelName})

	InactiveClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: liveSessionNamespace,
			Name:      "inactive_closed_total",
			Help:      "count of live sessions closed by the inactivity monitor",
		})

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: liveSessionNamespace,
			Name:      "notifications_total",
			Help:      "count of change notifications fanned out to subscribers",
		}, []string{fieldLabelName})

	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标。
// 通常应在进程启动时调用一次。
func Register(r prometheus.Registerer) {
	r.MustRegister(TransitionsTotal)
	r.MustRegister(TransitionFailures)
	r.MustRegister(TransitionLatency)
	r.MustRegister(RegistrySize)
	r.MustRegister(QueueLength)
	r.MustRegister(InactiveClosed)
	r.MustRegister(NotificationsSent)
	metricRegisterer = r
}
