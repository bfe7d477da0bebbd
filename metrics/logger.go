package metrics

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Log(info *RunInfo)
}

// MultiLogger sends every run record to each of its loggers.
type MultiLogger []Logger

func (m MultiLogger) Log(info *RunInfo) {
	for _, l := range m {
		if l != nil {
			l.Log(info)
		}
	}
}

// StdoutLogger writes run records as a structured log event.
type StdoutLogger struct {
	log zerolog.Logger
}

func NewStdoutLogger(log zerolog.Logger) *StdoutLogger {
	return &StdoutLogger{log: log}
}

func (l *StdoutLogger) Log(info *RunInfo) {
	infoStr, err := info.ToJSON()
	if err == nil {
		l.log.Info().RawJSON("run", []byte(strings.TrimSpace(infoStr))).Msg("run metrics")
	} else {
		l.log.Error().Err(err).Msg("StdoutLogger")
	}
}

const defaultQueueSize = 64
const defaultMaxLogFileSize = 64 * 1024 * 1024
const defaultMaxLogFiles = 10
const logFileName = "runs.log"

// FileLogger appends run records as JSON lines to LogDir/runs.log and
// rotates the file once it reaches MaxLogFileSize, keeping at most
// MaxLogFiles rotated files.
type FileLogger struct {
	RunQueue       chan *RunInfo
	LogDir         string
	MaxLogFileSize int64
	MaxLogFiles    int
	Verbose        bool

	log  zerolog.Logger
	done sync.WaitGroup
}

func NewFileLogger(logDir string, maxLogFileSize int64, maxLogFiles int, verbose bool, log zerolog.Logger) *FileLogger {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	logger := &FileLogger{
		RunQueue:       make(chan *RunInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		Verbose:        verbose,
		log:            log.With().Str("component", "FileLogger").Logger(),
	}

	logger.done.Add(1)
	go logger.startLogWriter()
	return logger
}

func (l *FileLogger) Log(info *RunInfo) {
	l.RunQueue <- info
}

// Close flushes the queued records and stops the writer.
func (l *FileLogger) Close() {
	close(l.RunQueue)
	l.done.Wait()
}

func (l *FileLogger) startLogWriter() {
	defer l.done.Done()

	f, err := l.openLogFile()
	if err != nil {
		l.log.Error().Err(err).Msg("log open error")
	}

	for info := range l.RunQueue {
		infoStr, err := info.ToJSON()
		if err != nil {
			l.log.Error().Err(err).Msg("info.ToJSON() error")
			continue
		}
		if f == nil {
			continue
		}

		f, err = l.tryRotateLogFile(f)
		if err != nil {
			continue
		}

		if _, err := f.WriteString(infoStr); err != nil {
			l.log.Error().Err(err).Msg("write error")
			continue
		}
		f.Sync()
	}

	if f != nil {
		f.Close()
	}
}

func (l *FileLogger) openLogFile() (*os.File, error) {
	if err := os.MkdirAll(l.LogDir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path.Join(l.LogDir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (l *FileLogger) tryRotateLogFile(currFile *os.File) (*os.File, error) {
	info, err := currFile.Stat()
	if err != nil {
		l.log.Error().Err(err).Msg("log rotation error")
		return currFile, nil
	}
	if info.Size() < l.MaxLogFileSize {
		return currFile, nil
	}

	currLogFilePath := path.Join(l.LogDir, logFileName)
	var rotatedLogFilePath string
	for i := 0; i < l.MaxLogFiles; i++ {
		filePath := path.Join(l.LogDir, fmt.Sprintf("%s.%d", logFileName, i))
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			rotatedLogFilePath = filePath
			break
		}
	}

	if len(rotatedLogFilePath) == 0 {
		rotatedLogFilePath, err = l.oldestRotatedFile()
		if err != nil {
			l.log.Error().Err(err).Msg("log rotation error")
			return currFile, nil
		}

		if l.Verbose {
			l.log.Info().Str("file", rotatedLogFilePath).Msg("maximum number of log files reached, overwriting")
		}
		if err = os.Remove(rotatedLogFilePath); err != nil {
			l.log.Error().Err(err).Msg("log rotation error")
			return currFile, nil
		}
	}

	currFile.Close()
	if err := os.Rename(currLogFilePath, rotatedLogFilePath); err != nil {
		l.log.Error().Err(err).Msg("log rotation error")
	} else if l.Verbose {
		l.log.Info().Str("file", rotatedLogFilePath).Msg("log file rotated")
	}

	f, err := l.openLogFile()
	if err != nil {
		l.log.Error().Err(err).Msg("log rotation error")
	}
	return f, err
}

func (l *FileLogger) oldestRotatedFile() (string, error) {
	files, err := ioutil.ReadDir(l.LogDir)
	if err != nil {
		return "", err
	}

	var oldestFile os.FileInfo
	oldestTime := time.Now()
	for _, file := range files {
		if !file.Mode().IsRegular() {
			continue
		}
		fileName := filepath.Base(file.Name())
		if strings.TrimSuffix(fileName, path.Ext(fileName)) != logFileName {
			continue
		}
		if file.ModTime().Before(oldestTime) {
			oldestFile = file
			oldestTime = file.ModTime()
		}
	}

	if oldestFile != nil {
		return path.Join(l.LogDir, oldestFile.Name()), nil
	}
	return path.Join(l.LogDir, logFileName+".0"), nil
}
