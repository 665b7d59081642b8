package logger

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	errorsTotal   int64
	warnsTotal    int64
	apiFetches    int64
	apiNoData     int64
	rowsAccepted  int64
	rowsRejected  int64
	fileMerges    int64
	s3Uploads     int64
	bytesFetched  int64
	bytesUploaded int64
)

func recordWarn() {
	atomic.AddInt64(&warnsTotal, 1)
}

func recordError() {
	atomic.AddInt64(&errorsTotal, 1)
}

// IncrementFetch records one completed provider API request of size bytes.
func IncrementFetch(size int) {
	atomic.AddInt64(&apiFetches, 1)
	atomic.AddInt64(&bytesFetched, int64(size))
}

// IncrementNoData records a provider 404 for an entity with no history.
func IncrementNoData() {
	atomic.AddInt64(&apiNoData, 1)
}

// IncrementAccepted records rows that survived normalization.
func IncrementAccepted(n int) {
	atomic.AddInt64(&rowsAccepted, int64(n))
}

// IncrementRejected records rows dropped by normalization.
func IncrementRejected(n int) {
	atomic.AddInt64(&rowsRejected, int64(n))
}

// IncrementMerge records one merge-append of an output file.
func IncrementMerge() {
	atomic.AddInt64(&fileMerges, 1)
}

// IncrementS3Upload records one uploaded output file of size bytes.
func IncrementS3Upload(size int64) {
	atomic.AddInt64(&s3Uploads, 1)
	atomic.AddInt64(&bytesUploaded, size)
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors":         atomic.LoadInt64(&errorsTotal),
		"warns":          atomic.LoadInt64(&warnsTotal),
		"api_fetches":    atomic.LoadInt64(&apiFetches),
		"api_no_data":    atomic.LoadInt64(&apiNoData),
		"rows_accepted":  atomic.LoadInt64(&rowsAccepted),
		"rows_rejected":  atomic.LoadInt64(&rowsRejected),
		"file_merges":    atomic.LoadInt64(&fileMerges),
		"s3_uploads":     atomic.LoadInt64(&s3Uploads),
		"bytes_fetched":  atomic.LoadInt64(&bytesFetched),
		"bytes_uploaded": atomic.LoadInt64(&bytesUploaded),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memStats.Used) / 1024 / 1024,
		"disk_mb":        int64(diskStats.Used) / 1024 / 1024,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		{MetricName: aws.String("Errors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsTotal)))},
		{MetricName: aws.String("Warns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsTotal)))},
		{MetricName: aws.String("APIFetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&apiFetches)))},
		{MetricName: aws.String("RowsAccepted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsAccepted)))},
		{MetricName: aws.String("RowsRejected"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&rowsRejected)))},
		{MetricName: aws.String("FileMerges"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&fileMerges)))},
		{MetricName: aws.String("S3Uploads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&s3Uploads)))},
		{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	}

	publishMetrics(ctx, data)
}
