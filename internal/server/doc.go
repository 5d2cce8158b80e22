// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
LabelFlow 用它承载 /api/v1 业务端口与独立的 /metrics 端口。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/StartTLS/Shutdown/WaitForShutdown。
  - Config：监听地址、读写超时、空闲超时、最大请求头与关闭超时；
    FromServerConfig 由应用配置生成。

# 主要能力

  - 非阻塞启动，ListenAddr 返回实际监听地址（支持 :0）。
  - StartTLS 使用 tlsutil.ServerConfig（TLS 1.2+，仅 AEAD 套件，协商 h2）。
  - WaitForShutdown 监听 SIGINT/SIGTERM 或服务异常后优雅关闭。
*/
package server
