/*
 * Copyright 2025 fmq-go authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bench implements the message-queue benchmark service: a server that
// creates a pair of shared queues (a client inbox and a client outbox), hands
// their descriptors to a peer process over a unix-domain control socket, and
// runs echo and timed-write workloads against them. The control channel is
// plumbing; every benchmarked byte moves through shared memory.
package bench
