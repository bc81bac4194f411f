// Offline serves its cache over the Redis protocol so that processes without a Go binding can share one store.
// Only the cache operations are exposed; values are plain strings on the wire.
//
//	SET key value [EX seconds | PX milliseconds]   Entries without EX / PX never expire in practice.
//	                                                Unlike Redis, EX 0 / PX 0 is accepted and stores an entry that
//	                                                is already stale; negative values are rejected.
//	GET key / GETFRESH key                          GETFRESH removes the entry and replies nil once it is stale.
//	FRESH key                                       1 if the entry exists and has not expired, otherwise 0.
//	EXPIRE key                                      Marks a fresh entry as expiring now.
//	DEL key [key ...]                               Replies the number of entries that existed.
//	FLUSH [prefix] / KEYS [prefix]
//	INFO                                            Prometheus metrics in text format.

package port

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nobletooth/offline/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/tidwall/redcon"
)

const RedisOk = "OK"

var address = flag.String("address", ":6380", "The ip:port to listen on for Redis protocol.")

// redisCommand represents a Redis command with its arguments.
type redisCommand struct {
	command string // Upper-cased command name.
	args    []string
}

// redisOutput conforms to a real Redis server output on non pub / sub commands.
type redisOutput struct {
	closeConnection bool     // Closes the connection if true.
	writeNil        bool     // Writes a nil value if true.
	err             *string  // Error to return if set.
	writeInt        *int     // Writes an integer value if set.
	writeArray      []string // Writes an array of bulk strings if non-nil.
	bulk            bool     // Writes writeString as a bulk string instead of a simple string.
	writeString     string   // Writes a string value if set.
}

func closeRedisConnection(msg string) redisOutput {
	return redisOutput{writeString: msg, closeConnection: true}
}

func writeRedisNil() redisOutput {
	return redisOutput{writeNil: true}
}

func writeRedisInt(i int) redisOutput {
	return redisOutput{writeInt: &i}
}

func writeRedisString(s string) redisOutput {
	return redisOutput{writeString: s}
}

func writeRedisBulk(s string) redisOutput {
	return redisOutput{writeString: s, bulk: true}
}

func writeRedisArray(items []string) redisOutput {
	if items == nil {
		items = []string{}
	}
	return redisOutput{writeArray: items}
}

func writeRedisError(err error) redisOutput {
	msg := "ERR " + err.Error()
	return redisOutput{err: &msg}
}

func wrongArgCount(command string) redisOutput {
	return writeRedisError(fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(command)))
}

type redisHandler struct {
	cache    *cache.Cache
	gatherer prometheus.Gatherer // Source of the INFO reply.
}

// newRedisHandler creates a new redisHandler.
func newRedisHandler(c *cache.Cache, gatherer prometheus.Gatherer) (*redisHandler, error) {
	if c == nil {
		return nil, errors.New("expected a non-nil cache")
	}
	if gatherer == nil {
		return nil, errors.New("expected a non-nil metrics gatherer")
	}
	return &redisHandler{cache: c, gatherer: gatherer}, nil
}

// parseTTL parses the optional `EX seconds` or `PX milliseconds` arguments of SET.
func parseTTL(args []string) (ttl time.Duration, hasTTL bool, err error) {
	if len(args) == 0 {
		return 0, false, nil
	}
	if len(args) != 2 {
		return 0, false, errors.New("syntax error")
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, false, errors.New("value is not an integer or out of range")
	}
	if amount < 0 {
		return 0, false, errors.New("invalid expire time in 'set' command")
	}
	switch strings.ToUpper(args[0]) {
	case "EX":
		return time.Duration(amount) * time.Second, true, nil
	case "PX":
		return time.Duration(amount) * time.Millisecond, true, nil
	default:
		return 0, false, errors.New("syntax error")
	}
}

// formatValue renders a cached value as the string a client stored.
func formatValue(value cache.Value) redisOutput {
	if value.IsAbsent() {
		return writeRedisNil()
	}
	if str, isString := value.Interface().(string); isString {
		return writeRedisBulk(str)
	}
	return writeRedisBulk(value.String())
}

// optionalPrefix returns the prefix argument of FLUSH and KEYS.
func optionalPrefix(args []string) (string, bool) {
	switch len(args) {
	case 0:
		return "", true
	case 1:
		return args[0], true
	default:
		return "", false
	}
}

func (rh *redisHandler) info() redisOutput {
	families, err := rh.gatherer.Gather()
	if err != nil {
		return writeRedisError(fmt.Errorf("failed to gather metrics: %w", err))
	}
	buffer := &bytes.Buffer{}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(buffer, family); err != nil {
			return writeRedisError(fmt.Errorf("failed to encode metric %s: %w", family.GetName(), err))
		}
	}
	return writeRedisBulk(buffer.String())
}

func (rh *redisHandler) handle(cmd redisCommand) redisOutput {
	switch cmd.command {
	case "PING":
		switch len(cmd.args) {
		case 0:
			return writeRedisString("PONG")
		case 1:
			return writeRedisBulk(cmd.args[0])
		default:
			return wrongArgCount(cmd.command)
		}
	case "QUIT":
		return closeRedisConnection(RedisOk)
	case "SET":
		if len(cmd.args) < 2 {
			return wrongArgCount(cmd.command)
		}
		key, value := cmd.args[0], cmd.args[1]
		ttl, hasTTL, err := parseTTL(cmd.args[2:])
		if err != nil {
			return writeRedisError(err)
		}
		if hasTTL {
			rh.cache.SetWithTTL(key, value, ttl)
		} else {
			rh.cache.Set(key, value)
		}
		return writeRedisString(RedisOk)
	case "GET", "GETFRESH":
		if len(cmd.args) != 1 {
			return wrongArgCount(cmd.command)
		}
		if cmd.command == "GETFRESH" {
			return formatValue(rh.cache.GetFresh(cmd.args[0]))
		}
		return formatValue(rh.cache.Get(cmd.args[0]))
	case "FRESH":
		if len(cmd.args) != 1 {
			return wrongArgCount(cmd.command)
		}
		if rh.cache.Fresh(cmd.args[0]) {
			return writeRedisInt(1)
		}
		return writeRedisInt(0)
	case "EXPIRE":
		if len(cmd.args) != 1 {
			return wrongArgCount(cmd.command)
		}
		rh.cache.Expire(cmd.args[0])
		return writeRedisString(RedisOk)
	case "DEL":
		if len(cmd.args) < 1 {
			return wrongArgCount(cmd.command)
		}
		deletedCount := 0
		for _, key := range cmd.args {
			if rh.cache.Remove(key) {
				deletedCount++
			}
		}
		return writeRedisInt(deletedCount)
	case "FLUSH":
		prefix, ok := optionalPrefix(cmd.args)
		if !ok {
			return wrongArgCount(cmd.command)
		}
		rh.cache.Flush(prefix)
		return writeRedisString(RedisOk)
	case "KEYS":
		prefix, ok := optionalPrefix(cmd.args)
		if !ok {
			return wrongArgCount(cmd.command)
		}
		return writeRedisArray(rh.cache.Keys(prefix))
	case "INFO":
		return rh.info()
	default:
		return writeRedisError(fmt.Errorf("unknown command '%s'", strings.ToLower(cmd.command)))
	}
}

// writeOutput writes `output` to the connection, closing it if asked to.
func writeOutput(conn redcon.Conn, output redisOutput) {
	switch {
	case output.err != nil:
		conn.WriteError(*output.err)
	case output.writeNil:
		conn.WriteNull()
	case output.writeInt != nil:
		conn.WriteInt(*output.writeInt)
	case output.writeArray != nil:
		conn.WriteArray(len(output.writeArray))
		for _, item := range output.writeArray {
			conn.WriteBulkString(item)
		}
	case output.bulk:
		conn.WriteBulkString(output.writeString)
	default:
		conn.WriteString(output.writeString)
	}
	if output.closeConnection {
		if err := conn.Close(); err != nil {
			slog.Error("Failed to close connection.", "remote", conn.RemoteAddr(), "error", err)
		}
	}
}

// RunRedisServer serves `c` over the Redis protocol until `ctx` is done.
func RunRedisServer(ctx context.Context, c *cache.Cache) error {
	if *address == "" {
		return errors.New("expected a non-empty --address flag")
	}

	redisHandler, err := newRedisHandler(c, prometheus.DefaultGatherer)
	if err != nil {
		return fmt.Errorf("failed to create a new redis handler: %w", err)
	}

	redisServer := redcon.NewServerNetwork("tcp" /*net*/, *address,
		/*handler*/ func(conn redcon.Conn, cmd redcon.Command) {
			// Convert redcon.Command to redisCommand.
			command := redisCommand{command: strings.ToUpper(string(cmd.Args[0])), args: make([]string, len(cmd.Args)-1)}
			for i := 1; i < len(cmd.Args); i++ {
				command.args[i-1] = string(cmd.Args[i])
			}
			writeOutput(conn, redisHandler.handle(command))
		},
		/*accept*/ func(conn redcon.Conn) bool {
			return true // Accept all connections.
		},
		/*close*/ func(conn redcon.Conn, err error) {
			if err != nil {
				slog.Debug("Connection closed with error.", "remote", conn.RemoteAddr(), "error", err)
			}
		})

	serverErrSignal := make(chan error, 1)
	go func() {
		if err := redisServer.ListenAndServe(); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()
	slog.Info("Serving the cache over Redis protocol.", "address", *address)

	select {
	case <-ctx.Done():
		if err := redisServer.Close(); err != nil {
			return fmt.Errorf("failed to close redis server: %w", err)
		}
	case err := <-serverErrSignal:
		if err == nil {
			return errors.New("redis server stopped unexpectedly")
		}
		return fmt.Errorf("redis server stopped unexpectedly: %w", err)
	}

	return nil // Exited with no errors.
}
